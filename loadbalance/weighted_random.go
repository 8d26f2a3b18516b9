package loadbalance

import (
	"math/rand"

	"mini-bidi/registry"
)

// WeightedRandomBalancer picks endpoints with probability proportional to
// their Weight. Endpoints without a weight count as 1.
type WeightedRandomBalancer struct{}

func weightOf(ep registry.Endpoint) int {
	if ep.Weight <= 0 {
		return 1
	}
	return ep.Weight
}

func (b *WeightedRandomBalancer) Pick(eps []registry.Endpoint, _ string) (registry.Endpoint, error) {
	if len(eps) == 0 {
		return registry.Endpoint{}, ErrNoEndpoints
	}

	total := 0
	for _, ep := range eps {
		total += weightOf(ep)
	}

	r := rand.Intn(total)
	for _, ep := range eps {
		r -= weightOf(ep)
		if r < 0 {
			return ep, nil
		}
	}
	return eps[len(eps)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
