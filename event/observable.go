// Package event routes BiDi events to typed observers.
//
// A Registry maps a wire method name to a decoder, an optional transform and
// an Observable. The transport hands every inbound event to Registry.Dispatch
// and waits for it to return, so observers of one event have all finished
// before the next inbound message is looked at.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Observer handles one notification.
type Observer[T any] func(ctx context.Context, args T) error

type observerOptions struct {
	concurrent bool
}

type ObserverOption func(*observerOptions)

// Concurrent runs the observer in its own goroutine alongside the other
// concurrent observers of the same notification. Notify still waits for it.
func Concurrent() ObserverOption {
	return func(o *observerOptions) {
		o.concurrent = true
	}
}

type observer[T any] struct {
	id         uint64
	fn         Observer[T]
	concurrent bool
}

// Observable is a named notification with an ordered list of observers.
type Observable[T any] struct {
	name string

	mu        sync.RWMutex
	nextID    uint64
	observers []observer[T]
}

func NewObservable[T any](name string) *Observable[T] {
	return &Observable[T]{name: name}
}

func (o *Observable[T]) Name() string {
	return o.name
}

// AddObserver appends fn and returns a function removing it again.
func (o *Observable[T]) AddObserver(fn Observer[T], opts ...ObserverOption) (remove func()) {
	var cfg observerOptions
	for _, opt := range opts {
		opt(&cfg)
	}

	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.observers = append(o.observers, observer[T]{id: id, fn: fn, concurrent: cfg.concurrent})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { o.remove(id) })
	}
}

// On is AddObserver for handlers that cannot fail.
func (o *Observable[T]) On(fn func(args T), opts ...ObserverOption) (remove func()) {
	return o.AddObserver(func(_ context.Context, args T) error {
		fn(args)
		return nil
	}, opts...)
}

func (o *Observable[T]) remove(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, obs := range o.observers {
		if obs.id == id {
			o.observers = append(o.observers[:i:i], o.observers[i+1:]...)
			return
		}
	}
}

func (o *Observable[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.observers)
}

// Notify delivers args to every observer and returns once all of them have
// returned. Sequential observers run in registration order on the calling
// goroutine; concurrent ones run meanwhile. A failing observer does not stop
// the others; their errors are joined.
func (o *Observable[T]) Notify(ctx context.Context, args T) error {
	o.mu.RLock()
	snapshot := append([]observer[T](nil), o.observers...)
	o.mu.RUnlock()
	if len(snapshot) == 0 {
		return nil
	}

	var (
		g      errgroup.Group
		errMu  sync.Mutex
		errs   []error
		record = func(err error) {
			errMu.Lock()
			errs = append(errs, err)
			errMu.Unlock()
		}
	)
	for _, obs := range snapshot {
		if !obs.concurrent {
			continue
		}
		fn := obs.fn
		g.Go(func() error {
			if err := call(ctx, fn, args); err != nil {
				record(err)
			}
			return nil
		})
	}
	for _, obs := range snapshot {
		if obs.concurrent {
			continue
		}
		if err := call(ctx, obs.fn, args); err != nil {
			record(err)
		}
	}
	_ = g.Wait()

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %w", o.name, errors.Join(errs...))
}

// call turns an observer panic into an error.
func call[T any](ctx context.Context, fn Observer[T], args T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return fn(ctx, args)
}
