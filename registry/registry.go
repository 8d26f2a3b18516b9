// Package registry tracks the BiDi remote ends a driver can connect to.
package registry

import (
	"context"
	"errors"
)

var ErrNoEndpoints = errors.New("no endpoints registered")

// Endpoint is one reachable remote end.
type Endpoint struct {
	URL     string `json:"url" yaml:"url" toml:"url"` // ws:// or wss:// session URL
	Weight  int    `json:"weight,omitempty" yaml:"weight" toml:"weight"`
	Browser string `json:"browser,omitempty" yaml:"browser" toml:"browser"`
	Version string `json:"version,omitempty" yaml:"version" toml:"version"`
}

type Registry interface {
	Register(ctx context.Context, service string, ep Endpoint, ttl int64) error
	Deregister(ctx context.Context, service string, url string) error
	Discover(ctx context.Context, service string) ([]Endpoint, error)
	Watch(ctx context.Context, service string) <-chan []Endpoint
}
