package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"mini-bidi/codec"
)

var ErrDuplicateEvent = errors.New("event already registered")

type handler func(ctx context.Context, params json.RawMessage) error

// Registry maps wire event names to their decode and notify steps.
// Registrations normally happen while modules are constructed.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]handler)}
}

// Register binds method to obs. Params are decoded with dec into the wire
// shape and projected into the observer-facing type by transform.
func Register[Wire, Args any](
	r *Registry,
	method string,
	dec codec.Decoder[Wire],
	transform func(Wire) (Args, error),
	obs *Observable[Args],
) error {
	h := func(ctx context.Context, params json.RawMessage) error {
		wire, err := dec(params)
		if err != nil {
			return fmt.Errorf("decode %s: %w", method, err)
		}
		args, err := transform(wire)
		if err != nil {
			return fmt.Errorf("transform %s: %w", method, err)
		}
		return obs.Notify(ctx, args)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[method]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, method)
	}
	r.handlers[method] = h
	return nil
}

// RegisterEvent binds method to obs with params decoded straight into T.
func RegisterEvent[T any](r *Registry, method string, dec codec.Decoder[T], obs *Observable[T]) error {
	return Register(r, method, dec, func(v T) (T, error) { return v, nil }, obs)
}

// Dispatch decodes params for method and notifies its observers. Unknown
// methods are not an error; handled reports whether method was registered.
func (r *Registry) Dispatch(ctx context.Context, method string, params json.RawMessage) (handled bool, err error) {
	r.mu.RLock()
	h, ok := r.handlers[method]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, h(ctx, params)
}

func (r *Registry) Has(method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[method]
	return ok
}

// Methods lists registered event names in sorted order.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
