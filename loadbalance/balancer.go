// Package loadbalance picks which remote end a driver connects to.
//
// Three strategies are implemented:
//   - RoundRobin:      equal browsers, spread sessions evenly
//   - WeightedRandom:  hosts of different capacity, by Endpoint.Weight
//   - ConsistentHash:  the same affinity key lands on the same browser
package loadbalance

import (
	"errors"
	"fmt"

	"mini-bidi/registry"
)

var ErrNoEndpoints = errors.New("no endpoints available")

// Balancer selects one endpoint. key is the caller's affinity key; only
// ConsistentHash looks at it. Implementations are goroutine-safe.
type Balancer interface {
	Pick(eps []registry.Endpoint, key string) (registry.Endpoint, error)
	Name() string
}

// ByName returns the balancer configured under name.
func ByName(name string) (Balancer, error) {
	switch name {
	case "", "round_robin", "RoundRobin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random", "WeightedRandom":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash", "ConsistentHash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, fmt.Errorf("unknown balancer %q", name)
}
