package codec

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EnumValue declares one enum member. Wire overrides the token; when empty the
// token is the lowercased Name.
type EnumValue[T comparable] struct {
	Value T
	Name  string
	Wire  string
}

// EnumOption configures an Enum at construction.
type EnumOption[T comparable] func(*Enum[T])

// WithDefault maps unknown inbound tokens to v instead of failing.
func WithDefault[T comparable](v T) EnumOption[T] {
	return func(e *Enum[T]) {
		e.def = &v
	}
}

// Enum is the immutable bidirectional table between enum values and their
// wire tokens. Build one per enum type at package init.
type Enum[T comparable] struct {
	name     string
	values   []T
	toWire   map[T]string
	fromWire map[string]T
	def      *T
}

// NewEnum builds the table. Declaring the same value or token twice is a
// programming error and panics.
func NewEnum[T comparable](name string, values []EnumValue[T], opts ...EnumOption[T]) *Enum[T] {
	e := &Enum[T]{
		name:     name,
		toWire:   make(map[T]string, len(values)),
		fromWire: make(map[string]T, len(values)),
	}
	for _, v := range values {
		tok := v.Wire
		if tok == "" {
			tok = strings.ToLower(v.Name)
		}
		if _, dup := e.toWire[v.Value]; dup {
			panic(fmt.Sprintf("codec: enum %s declares %s twice", name, v.Name))
		}
		if _, dup := e.fromWire[tok]; dup {
			panic(fmt.Sprintf("codec: enum %s declares token %q twice", name, tok))
		}
		e.toWire[v.Value] = tok
		e.fromWire[tok] = v.Value
		e.values = append(e.values, v.Value)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the enum type name used in errors.
func (e *Enum[T]) Name() string {
	return e.name
}

// Values returns the declared values in declaration order.
func (e *Enum[T]) Values() []T {
	return append([]T(nil), e.values...)
}

// Token returns the wire token of v.
func (e *Enum[T]) Token(v T) (string, error) {
	tok, ok := e.toWire[v]
	if !ok {
		return "", fmt.Errorf("%s: value %v has no wire token", e.name, v)
	}
	return tok, nil
}

// Parse maps a wire token back to its value.
func (e *Enum[T]) Parse(tok string) (T, error) {
	if v, ok := e.fromWire[tok]; ok {
		return v, nil
	}
	if e.def != nil {
		return *e.def, nil
	}
	var zero T
	return zero, &DecodeError{Shape: e.name, Reason: fmt.Sprintf("unknown value %q", tok)}
}

// Marshal encodes v as its JSON string token.
func (e *Enum[T]) Marshal(v T) ([]byte, error) {
	tok, err := e.Token(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tok)
}

// Unmarshal decodes a JSON string token into out.
func (e *Enum[T]) Unmarshal(data []byte, out *T) error {
	var tok string
	if err := json.Unmarshal(data, &tok); err != nil {
		return &DecodeError{Shape: e.name, Reason: "expected string token, got " + string(data)}
	}
	v, err := e.Parse(tok)
	if err != nil {
		return err
	}
	*out = v
	return nil
}

// Decoder exposes Parse for a JSON string payload.
func (e *Enum[T]) Decoder() Decoder[T] {
	return func(raw []byte) (T, error) {
		var v T
		err := e.Unmarshal(raw, &v)
		return v, err
	}
}
