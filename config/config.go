// Package config loads driver settings. Values are layered: built-in
// defaults, then an optional YAML or TOML file, then BIDI_* environment
// variables.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mstoykov/envconfig"
	"gopkg.in/yaml.v3"

	"mini-bidi/loadbalance"
	"mini-bidi/protocol"
	"mini-bidi/registry"
)

// Config is flat on purpose: every field maps onto exactly one environment
// variable.
type Config struct {
	// URL of the BiDi session endpoint. When empty the endpoint is discovered
	// through the registry.
	URL          string        `yaml:"url" toml:"url" envconfig:"BIDI_URL"`
	Connection   string        `yaml:"connection" toml:"connection" envconfig:"BIDI_CONNECTION"`
	Codec        string        `yaml:"codec" toml:"codec" envconfig:"BIDI_CODEC"`
	Timeout      time.Duration `yaml:"timeout" toml:"timeout" envconfig:"BIDI_TIMEOUT"`
	PingInterval time.Duration `yaml:"pingInterval" toml:"pingInterval" envconfig:"BIDI_PING_INTERVAL"`

	Service         string              `yaml:"service" toml:"service" envconfig:"BIDI_SERVICE"`
	Balancer        string              `yaml:"balancer" toml:"balancer" envconfig:"BIDI_BALANCER"`
	AffinityKey     string              `yaml:"affinityKey" toml:"affinityKey" envconfig:"BIDI_AFFINITY_KEY"`
	Etcd            []string            `yaml:"etcd" toml:"etcd" envconfig:"BIDI_ETCD"`
	EtcdDialTimeout time.Duration       `yaml:"etcdDialTimeout" toml:"etcdDialTimeout" envconfig:"BIDI_ETCD_DIAL_TIMEOUT"`
	Endpoints       []registry.Endpoint `yaml:"endpoints" toml:"endpoints" ignored:"true"`

	// CommandDeadline bounds one call end to end, rate limiting and retries
	// included. Zero leaves only the per-attempt Timeout.
	CommandDeadline time.Duration `yaml:"commandDeadline" toml:"commandDeadline" envconfig:"BIDI_COMMAND_DEADLINE"`
	Retries         int           `yaml:"retries" toml:"retries" envconfig:"BIDI_RETRIES"`
	RateLimit       float64       `yaml:"rateLimit" toml:"rateLimit" envconfig:"BIDI_RATE_LIMIT"`
	RateBurst       int           `yaml:"rateBurst" toml:"rateBurst" envconfig:"BIDI_RATE_BURST"`
	Tracing         bool          `yaml:"tracing" toml:"tracing" envconfig:"BIDI_TRACING"`

	LogLevel    string `yaml:"logLevel" toml:"logLevel" envconfig:"BIDI_LOG_LEVEL"`
	LogFilter   string `yaml:"logFilter" toml:"logFilter" envconfig:"BIDI_LOG_FILTER"`
	MetricsAddr string `yaml:"metricsAddr" toml:"metricsAddr" envconfig:"BIDI_METRICS_ADDR"`
}

func Default() Config {
	return Config{
		Connection:      "gorilla",
		Codec:           "json",
		Timeout:         60 * time.Second,
		Service:         "bidi",
		Balancer:        "round_robin",
		EtcdDialTimeout: 5 * time.Second,
		RateBurst:       1,
		LogLevel:        "info",
	}
}

// Load layers path (if not empty) and the environment over the defaults.
// lookup reads environment variables; nil means os.LookupEnv.
func Load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.ReadFile(path); err != nil {
			return cfg, err
		}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := envconfig.Process("", &cfg, lookup); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// ReadFile overlays the file at path. The format follows the extension:
// .yaml/.yml or .toml.
func (c *Config) ReadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("%s: unknown keys %v", path, undecoded)
		}
	default:
		return fmt.Errorf("%s: unsupported config format %q", path, ext)
	}
	return nil
}

// Validate checks the enumerated settings. Whether a remote end is reachable
// is left to the driver.
func (c Config) Validate() error {
	switch c.Connection {
	case "gorilla", "nhooyr":
	default:
		return fmt.Errorf("connection must be gorilla or nhooyr, got %q", c.Connection)
	}
	if _, err := protocol.ParseCodecType(c.Codec); err != nil {
		return err
	}
	if _, err := loadbalance.ByName(c.Balancer); err != nil {
		return err
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}
	if c.CommandDeadline < 0 {
		return fmt.Errorf("commandDeadline must not be negative, got %s", c.CommandDeadline)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rateLimit must not be negative, got %g", c.RateLimit)
	}
	return nil
}
