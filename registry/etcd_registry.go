package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdRegistry stores endpoints in etcd v3.
//
//	Key:   /mini-bidi/{service}/{escaped url}
//	Value: JSON-encoded Endpoint
//
// Registrations hang off a TTL lease kept alive in the background, so a
// remote end that dies without deregistering disappears once the lease
// expires.
type EtcdRegistry struct {
	client *clientv3.Client
}

func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("etcd client: %w", err)
	}
	return &EtcdRegistry{client: c}, nil
}

func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}

func servicePrefix(service string) string {
	return "/mini-bidi/" + service + "/"
}

func endpointKey(service, rawURL string) string {
	return servicePrefix(service) + url.PathEscape(rawURL)
}

// Register puts ep under a fresh lease of ttl seconds and keeps the lease
// alive until ctx ends.
//
// The lease id stays local so one EtcdRegistry can be shared by several
// servers.
func (r *EtcdRegistry) Register(ctx context.Context, service string, ep Endpoint, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("grant lease: %w", err)
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}
	if _, err = r.client.Put(ctx, endpointKey(service, ep.URL), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("put %s: %w", ep.URL, err)
	}

	ch, err := r.client.KeepAlive(context.WithoutCancel(ctx), lease.ID)
	if err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

func (r *EtcdRegistry) Deregister(ctx context.Context, service string, rawURL string) error {
	_, err := r.client.Delete(ctx, endpointKey(service, rawURL))
	return err
}

// Watch emits the full endpoint list after every change under the service
// prefix until ctx ends.
func (r *EtcdRegistry) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	go func() {
		defer close(ch)
		for range r.client.Watch(ctx, servicePrefix(service), clientv3.WithPrefix()) {
			eps, err := r.Discover(ctx, service)
			if err != nil {
				continue
			}
			select {
			case ch <- eps:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (r *EtcdRegistry) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, servicePrefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	eps := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			continue
		}
		eps = append(eps, ep)
	}
	return eps, nil
}
