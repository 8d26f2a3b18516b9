package transport

import (
	"context"
	"errors"
	"sync"

	"mini-bidi/connection"
)

var ErrPoolExhausted = errors.New("transport pool exhausted")

// Pool keeps one started Transport per remote end URL. Transports multiplex,
// so callers share them instead of borrowing and returning. A transport that
// stopped is replaced on the next Get.
type Pool struct {
	mu         sync.Mutex
	transports map[string]*Transport
	maxConns   int                          // 0 means unbounded
	factory    func() connection.Connection // Connection factory function
	opts       Options
}

func NewPool(maxConns int, factory func() connection.Connection, opts Options) *Pool {
	return &Pool{
		transports: make(map[string]*Transport),
		maxConns:   maxConns,
		factory:    factory,
		opts:       opts,
	}
}

// Get returns the started transport for url, dialing one when needed. The
// dial happens under the pool lock, so concurrent Gets for a new url share a
// single connection.
func (p *Pool) Get(ctx context.Context, url string) (*Transport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.transports[url]; ok {
		if t.State() == StateStarted {
			return t, nil
		}
		delete(p.transports, url)
	}
	if p.maxConns > 0 && len(p.transports) >= p.maxConns {
		return nil, ErrPoolExhausted
	}

	t := New(p.factory(), nil, p.opts)
	if err := t.Start(ctx, url); err != nil {
		_ = t.Stop()
		return nil, err
	}
	p.transports[url] = t
	return t, nil
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transports)
}

// Close stops every transport and waits for their pumps to exit.
func (p *Pool) Close() error {
	p.mu.Lock()
	transports := p.transports
	p.transports = make(map[string]*Transport)
	p.mu.Unlock()

	var errs []error
	for _, t := range transports {
		errs = append(errs, t.Stop())
		<-t.Done()
	}
	return errors.Join(errs...)
}
