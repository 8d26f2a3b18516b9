package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Object is an ordered JSON object used for properties no declared field
// claimed. Nested objects are *Object, arrays []any, numbers json.Number and
// the remaining scalars string, bool or nil.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// ParseObject decodes raw into an Object, keeping document order.
func ParseObject(raw []byte) (*Object, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &DecodeError{Shape: "object", Reason: "invalid JSON"}
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return nil, &DecodeError{Shape: "object", Reason: "expected object, got " + kindOf(res)}
	}
	return objectOf(res), nil
}

// Set stores v under key. New keys are appended; existing keys keep their position.
func (o *Object) Set(key string, v any) {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

// Len returns the number of properties.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// MarshalJSON writes the properties in order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the contents of o with the decoded object.
func (o *Object) UnmarshalJSON(data []byte) error {
	parsed, err := ParseObject(data)
	if err != nil {
		return err
	}
	*o = *parsed
	return nil
}

func objectOf(res gjson.Result) *Object {
	o := NewObject()
	res.ForEach(func(key, value gjson.Result) bool {
		o.Set(key.Str, valueOf(value))
		return true
	})
	return o
}

func valueOf(res gjson.Result) any {
	switch res.Type {
	case gjson.Null:
		return nil
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		return json.Number(res.Raw)
	case gjson.String:
		return res.Str
	}
	if res.IsObject() {
		return objectOf(res)
	}
	items := res.Array()
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, valueOf(item))
	}
	return out
}

// kindOf names the JSON kind of res for error messages.
func kindOf(res gjson.Result) string {
	switch res.Type {
	case gjson.Null:
		return "null"
	case gjson.True, gjson.False:
		return "boolean"
	case gjson.Number:
		return "number"
	case gjson.String:
		return "string"
	}
	if res.IsObject() {
		return "object"
	}
	if res.IsArray() {
		return "array"
	}
	return "nothing"
}

// ParseValue decodes any JSON value into the Object value model.
func ParseValue(raw []byte) (any, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &DecodeError{Shape: "value", Reason: "invalid JSON"}
	}
	return valueOf(gjson.ParseBytes(raw)), nil
}
