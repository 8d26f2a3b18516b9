package loadbalance

import (
	"sync/atomic"

	"mini-bidi/registry"
)

// RoundRobinBalancer cycles through the endpoints in order.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *RoundRobinBalancer) Pick(eps []registry.Endpoint, _ string) (registry.Endpoint, error) {
	if len(eps) == 0 {
		return registry.Endpoint{}, ErrNoEndpoints
	}
	index := (b.counter.Add(1) - 1) % uint64(len(eps))
	return eps[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
