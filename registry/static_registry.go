package registry

import (
	"context"
	"sort"
	"sync"
)

// StaticRegistry keeps endpoints in memory. It serves configured endpoint
// lists and in-process remote ends; ttl is ignored.
type StaticRegistry struct {
	mu       sync.Mutex
	services map[string]map[string]Endpoint
	watchers map[string][]chan []Endpoint
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		services: make(map[string]map[string]Endpoint),
		watchers: make(map[string][]chan []Endpoint),
	}
}

// NewStaticRegistryFrom preloads eps under service.
func NewStaticRegistryFrom(service string, eps ...Endpoint) *StaticRegistry {
	r := NewStaticRegistry()
	for _, ep := range eps {
		_ = r.Register(context.Background(), service, ep, 0)
	}
	return r
}

func (r *StaticRegistry) Register(_ context.Context, service string, ep Endpoint, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.services[service] == nil {
		r.services[service] = make(map[string]Endpoint)
	}
	r.services[service][ep.URL] = ep
	r.notifyLocked(service)
	return nil
}

func (r *StaticRegistry) Deregister(_ context.Context, service string, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services[service], url)
	r.notifyLocked(service)
	return nil
}

func (r *StaticRegistry) Discover(_ context.Context, service string) ([]Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(service), nil
}

// Watch emits the endpoint list after every change. A slow reader only ever
// sees the latest list.
func (r *StaticRegistry) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	r.mu.Lock()
	r.watchers[service] = append(r.watchers[service], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		ws := r.watchers[service]
		for i, w := range ws {
			if w == ch {
				r.watchers[service] = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// listLocked returns endpoints sorted by URL so balancers see a stable order.
func (r *StaticRegistry) listLocked(service string) []Endpoint {
	eps := make([]Endpoint, 0, len(r.services[service]))
	for _, ep := range r.services[service] {
		eps = append(eps, ep)
	}
	sort.Slice(eps, func(i, j int) bool { return eps[i].URL < eps[j].URL })
	return eps
}

func (r *StaticRegistry) notifyLocked(service string) {
	eps := r.listLocked(service)
	for _, ch := range r.watchers[service] {
		select {
		case <-ch:
		default:
		}
		ch <- eps
	}
}
