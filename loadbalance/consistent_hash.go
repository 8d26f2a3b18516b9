package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"mini-bidi/registry"
)

// ConsistentHashBalancer maps affinity keys onto a hash ring of endpoints,
// so a key keeps hitting the same browser while the endpoint set is stable.
// Each endpoint owns replicas virtual nodes hashed from "{url}#{i}".
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu    sync.Mutex
	sig   string // endpoint set the ring was built from
	ring  []uint32
	nodes map[uint32]registry.Endpoint
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]registry.Endpoint),
	}
}

// Add places ep onto the ring.
func (b *ConsistentHashBalancer) Add(ep registry.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addLocked(ep)
	b.sig = ""
}

func (b *ConsistentHashBalancer) addLocked(ep registry.Endpoint) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", ep.URL, i)))
		if _, taken := b.nodes[hash]; !taken {
			b.ring = append(b.ring, hash)
		}
		b.nodes[hash] = ep
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// Pick returns the endpoint owning key. When eps is non-empty and differs
// from the set the ring was built from, the ring is rebuilt first.
func (b *ConsistentHashBalancer) Pick(eps []registry.Endpoint, key string) (registry.Endpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(eps) > 0 {
		if sig := signature(eps); sig != b.sig {
			b.ring = b.ring[:0]
			b.nodes = make(map[uint32]registry.Endpoint)
			for _, ep := range eps {
				b.addLocked(ep)
			}
			b.sig = sig
		}
	}
	if len(b.ring) == 0 {
		return registry.Endpoint{}, ErrNoEndpoints
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func signature(eps []registry.Endpoint) string {
	urls := make([]string, len(eps))
	for i, ep := range eps {
		urls[i] = ep.URL
	}
	sort.Strings(urls)
	return strings.Join(urls, "\n")
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
