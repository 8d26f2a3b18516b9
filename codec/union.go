package codec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Union decodes a tagged union: the discriminant field is read first and
// selects the variant Decoder that parses the whole payload.
//
// Unions are built once at package init and are read-only afterwards.
type Union[T any] struct {
	name     string
	field    string
	variants map[string]Decoder[T]
	fallback Decoder[T]
}

// NewUnion creates a union named name keyed by field ("type" when empty).
func NewUnion[T any](name, field string) *Union[T] {
	if field == "" {
		field = "type"
	}
	return &Union[T]{
		name:     name,
		field:    field,
		variants: make(map[string]Decoder[T]),
	}
}

// Variant declares the Decoder used when the discriminant equals tag.
func (u *Union[T]) Variant(tag string, dec Decoder[T]) *Union[T] {
	if _, dup := u.variants[tag]; dup {
		panic(fmt.Sprintf("codec: union %s declares variant %q twice", u.name, tag))
	}
	u.variants[tag] = dec
	return u
}

// Fallback declares the Decoder used for unknown discriminants. Without one,
// unknown discriminants fail.
func (u *Union[T]) Fallback(dec Decoder[T]) *Union[T] {
	u.fallback = dec
	return u
}

// Tags returns the declared discriminant values, sorted.
func (u *Union[T]) Tags() []string {
	tags := make([]string, 0, len(u.variants))
	for tag := range u.variants {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Decode selects the variant from the discriminant and decodes raw with it.
func (u *Union[T]) Decode(raw []byte) (T, error) {
	var zero T
	if !gjson.ValidBytes(raw) {
		return zero, &DecodeError{Shape: u.name, Reason: "invalid JSON"}
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return zero, &DecodeError{Shape: u.name, Reason: "expected object, got " + kindOf(res)}
	}

	tag := res.Get(u.field)
	if !tag.Exists() {
		return zero, &DecodeError{Shape: u.name, Field: u.field, Reason: "missing discriminant"}
	}
	if tag.Type != gjson.String {
		return zero, &DecodeError{Shape: u.name, Field: u.field, Reason: "expected string, got " + kindOf(tag)}
	}

	dec, ok := u.variants[tag.Str]
	if !ok {
		if u.fallback == nil {
			return zero, &DecodeError{
				Shape:  u.name,
				Field:  u.field,
				Reason: fmt.Sprintf("unknown discriminant %q (expected one of %s)", tag.Str, strings.Join(u.Tags(), ", ")),
			}
		}
		dec = u.fallback
	}
	return dec(raw)
}

// Decoder exposes Decode as a Decoder value.
func (u *Union[T]) Decoder() Decoder[T] {
	return u.Decode
}
