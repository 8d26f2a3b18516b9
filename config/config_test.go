package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-bidi/registry"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("", env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, "bidi", cfg.Service)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "bidi.yaml", `
url: ws://127.0.0.1:9222/session
codec: easyjson
timeout: 5s
balancer: weighted_random
endpoints:
  - url: ws://a/session
    weight: 3
    browser: firefox
`)
	cfg, err := Load(path, env(nil))
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9222/session", cfg.URL)
	assert.Equal(t, "easyjson", cfg.Codec)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "gorilla", cfg.Connection)
	assert.Equal(t, []registry.Endpoint{{URL: "ws://a/session", Weight: 3, Browser: "firefox"}}, cfg.Endpoints)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "bidi.toml", `
connection = "nhooyr"
timeout = "750ms"
etcd = ["127.0.0.1:2379"]
retries = 2

[[endpoints]]
url = "ws://b/session"
weight = 1
`)
	cfg, err := Load(path, env(nil))
	require.NoError(t, err)
	assert.Equal(t, "nhooyr", cfg.Connection)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout)
	assert.Equal(t, []string{"127.0.0.1:2379"}, cfg.Etcd)
	assert.Equal(t, 2, cfg.Retries)
	require.Len(t, cfg.Endpoints, 1)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "bidi.yml", "url: ws://file/session\ntimeout: 5s\n")
	cfg, err := Load(path, env(map[string]string{
		"BIDI_URL":        "ws://env/session",
		"BIDI_ETCD":       "10.0.0.1:2379,10.0.0.2:2379",
		"BIDI_RATE_LIMIT": "2.5",
		"BIDI_TRACING":    "true",

		"BIDI_COMMAND_DEADLINE": "30s",
	}))
	require.NoError(t, err)
	assert.Equal(t, "ws://env/session", cfg.URL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379"}, cfg.Etcd)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.True(t, cfg.Tracing)
	assert.Equal(t, 30*time.Second, cfg.CommandDeadline)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "bidi.json", "{}"), env(nil))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(writeFile(t, "bidi.yaml", "tiemout: 5s\n"), env(nil))
	assert.ErrorContains(t, err, "tiemout")

	_, err = Load(writeFile(t, "bidi.toml", "tiemout = \"5s\"\n"), env(nil))
	assert.ErrorContains(t, err, "unknown keys")

	_, err = Load("", env(map[string]string{"BIDI_TIMEOUT": "soon"}))
	assert.ErrorContains(t, err, "environment")

	_, err = Load("", env(map[string]string{"BIDI_CODEC": "gob"}))
	assert.ErrorContains(t, err, `unknown codec "gob"`)

	_, err = Load("", env(map[string]string{"BIDI_CONNECTION": "quic"}))
	assert.ErrorContains(t, err, "gorilla or nhooyr")

	_, err = Load("", env(map[string]string{"BIDI_BALANCER": "random"}))
	assert.ErrorContains(t, err, "unknown balancer")

	_, err = Load("", env(map[string]string{"BIDI_COMMAND_DEADLINE": "-1s"}))
	assert.ErrorContains(t, err, "commandDeadline must not be negative")
}
