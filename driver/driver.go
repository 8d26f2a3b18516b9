// Package driver is the entry point of mini-bidi: it owns one Transport and
// event Registry and exposes the BiDi modules on top of them.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	bidibrowser "mini-bidi/bidi/browser"
	"mini-bidi/bidi/browsingcontext"
	bidilog "mini-bidi/bidi/log"
	"mini-bidi/bidi/permissions"
	"mini-bidi/bidi/script"
	"mini-bidi/bidi/session"
	"mini-bidi/bidi/webextension"
	"mini-bidi/config"
	"mini-bidi/connection"
	"mini-bidi/event"
	"mini-bidi/loadbalance"
	"mini-bidi/log"
	"mini-bidi/metrics"
	"mini-bidi/middleware"
	"mini-bidi/protocol"
	"mini-bidi/registry"
	"mini-bidi/transport"
)

// ErrNoEndpoint is returned by Connect when the config names neither a URL
// nor a way to discover one.
var ErrNoEndpoint = errors.New("no remote end configured")

const retryBaseDelay = 100 * time.Millisecond

type Driver struct {
	transport *transport.Transport
	events    *event.Registry

	Session         *session.Module
	Log             *bidilog.Module
	Script          *script.Module
	BrowsingContext *browsingcontext.Module
	Browser         *bidibrowser.Module
	Permissions     *permissions.Module
	WebExtension    *webextension.Module
}

// New builds a Driver over conn. Nothing is dialed until Start.
func New(conn connection.Connection, opts transport.Options) (*Driver, error) {
	events := event.NewRegistry()
	t := transport.New(conn, events, opts)
	d := &Driver{
		transport:    t,
		events:       events,
		Session:      session.New(t),
		Browser:      bidibrowser.New(t),
		Permissions:  permissions.New(t),
		WebExtension: webextension.New(t),
	}
	var err error
	if d.Log, err = bidilog.New(events); err != nil {
		return nil, err
	}
	if d.Script, err = script.New(t, events); err != nil {
		return nil, err
	}
	if d.BrowsingContext, err = browsingcontext.New(t, events); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) Start(ctx context.Context, url string) error {
	return d.transport.Start(ctx, url)
}

// Stop closes the connection, fails outstanding commands and waits for the
// inbound pump to exit. Do not call it from an event observer; use
// StopAsync there.
func (d *Driver) Stop() error {
	err := d.transport.Stop()
	<-d.transport.Done()
	return err
}

// StopAsync closes the connection without waiting for the pump.
func (d *Driver) StopAsync() error {
	return d.transport.Stop()
}

// Use appends middlewares around every command.
func (d *Driver) Use(mws ...middleware.Middleware) {
	d.transport.Use(mws...)
}

func (d *Driver) Transport() *transport.Transport {
	return d.transport
}

func (d *Driver) Events() *event.Registry {
	return d.events
}

// Done is closed once the connection is gone for good.
func (d *Driver) Done() <-chan struct{} {
	return d.transport.Done()
}

type connectOptions struct {
	logger   *log.Logger
	metrics  *metrics.Collector
	tracer   trace.TracerProvider
	registry registry.Registry
	balancer loadbalance.Balancer
}

type Option func(*connectOptions)

func WithLogger(l *log.Logger) Option {
	return func(o *connectOptions) { o.logger = l }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(o *connectOptions) { o.metrics = c }
}

// WithTracerProvider sets the provider used when cfg.Tracing is on. The
// global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *connectOptions) { o.tracer = tp }
}

// WithRegistry replaces the registry built from cfg.Etcd or cfg.Endpoints.
func WithRegistry(r registry.Registry) Option {
	return func(o *connectOptions) { o.registry = r }
}

// WithBalancer shares one balancer across Connect calls so round robin and
// consistent hashing keep their state. cfg.Balancer is used otherwise.
func WithBalancer(b loadbalance.Balancer) Option {
	return func(o *connectOptions) { o.balancer = b }
}

// Connect resolves the remote end named by cfg, builds a Driver with the
// configured connection, codec and middlewares, and starts it.
func Connect(ctx context.Context, cfg config.Config, opts ...Option) (*Driver, error) {
	var o connectOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	url, err := Resolve(ctx, cfg, o.registry, o.balancer)
	if err != nil {
		return nil, err
	}
	codecType, _ := protocol.ParseCodecType(cfg.Codec)

	d, err := New(NewConnection(cfg), transport.Options{
		Codec:       codecType,
		Timeout:     cfg.Timeout,
		Logger:      o.logger,
		Metrics:     o.metrics,
		Middlewares: Middlewares(cfg, o.logger, o.tracer),
	})
	if err != nil {
		return nil, err
	}
	if err := d.Start(ctx, url); err != nil {
		_ = d.Stop()
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	o.logger.Infof("transport", "connected to %s", url)
	return d, nil
}

// NewConnection returns the Connection implementation cfg selects.
func NewConnection(cfg config.Config) connection.Connection {
	opts := connection.Options{PingInterval: cfg.PingInterval}
	if cfg.Connection == "nhooyr" {
		return connection.NewNhooyrConnection(opts)
	}
	return connection.NewWebSocketConnection(opts)
}

// Middlewares assembles the command pipeline cfg asks for, outermost first:
// tracing, logging, the command deadline, rate limiting, retries.
func Middlewares(cfg config.Config, logger *log.Logger, tp trace.TracerProvider) []middleware.Middleware {
	var mws []middleware.Middleware
	if cfg.Tracing {
		mws = append(mws, middleware.TracingMiddleware(tp))
	}
	if logger != nil {
		mws = append(mws, middleware.LoggingMiddleware(logger))
	}
	if cfg.CommandDeadline > 0 {
		mws = append(mws, middleware.TimeoutMiddleware(cfg.CommandDeadline))
	}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.Retries > 0 {
		mws = append(mws, middleware.RetryMiddleware(cfg.Retries, retryBaseDelay, logger))
	}
	return mws
}

// Resolve returns cfg.URL, or discovers the endpoints of cfg.Service and
// lets a balancer pick one. reg and bal override the ones cfg describes.
func Resolve(ctx context.Context, cfg config.Config, reg registry.Registry, bal loadbalance.Balancer) (string, error) {
	if cfg.URL != "" {
		return cfg.URL, nil
	}
	if reg == nil {
		switch {
		case len(cfg.Etcd) > 0:
			etcd, err := registry.NewEtcdRegistry(cfg.Etcd, cfg.EtcdDialTimeout)
			if err != nil {
				return "", fmt.Errorf("etcd: %w", err)
			}
			defer etcd.Close()
			reg = etcd
		case len(cfg.Endpoints) > 0:
			reg = registry.NewStaticRegistryFrom(cfg.Service, cfg.Endpoints...)
		default:
			return "", ErrNoEndpoint
		}
	}

	eps, err := reg.Discover(ctx, cfg.Service)
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", cfg.Service, err)
	}
	if bal == nil {
		if bal, err = loadbalance.ByName(cfg.Balancer); err != nil {
			return "", err
		}
	}
	ep, err := bal.Pick(eps, cfg.AffinityKey)
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", cfg.Service, err)
	}
	return ep.URL, nil
}
