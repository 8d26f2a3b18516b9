package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// Reader gives typed access to the fields of one JSON object.
//
// Required accessors fail when the field is missing or has the wrong JSON
// kind; Optional accessors treat a missing or null field as absent but still
// fail on a wrong kind. The first failure sticks: subsequent reads return zero
// values and Err reports the original problem. Nested readers share the error
// of their root.
type Reader struct {
	shape  string
	path   string
	keys   []string
	fields map[string]gjson.Result
	used   map[string]bool
	err    *error
}

// NewReader parses raw as a JSON object belonging to shape.
func NewReader(shape string, raw []byte) *Reader {
	var err error
	r := &Reader{shape: shape, err: &err}
	if !gjson.ValidBytes(raw) {
		r.failf("", "invalid JSON")
		return r
	}
	r.load(gjson.ParseBytes(raw))
	return r
}

func (r *Reader) load(res gjson.Result) {
	if !res.IsObject() {
		r.failf("", "expected object, got %s", kindOf(res))
		return
	}
	r.fields = make(map[string]gjson.Result)
	r.used = make(map[string]bool)
	res.ForEach(func(key, value gjson.Result) bool {
		if _, dup := r.fields[key.Str]; !dup {
			r.keys = append(r.keys, key.Str)
		}
		r.fields[key.Str] = value
		return true
	})
}

func (r *Reader) child(name string, res gjson.Result) *Reader {
	c := &Reader{shape: r.shape, path: joinPath(r.path, name), err: r.err}
	if *r.err == nil {
		c.load(res)
	}
	return c
}

func (r *Reader) failf(field string, format string, args ...any) {
	if *r.err != nil {
		return
	}
	*r.err = &DecodeError{
		Shape:  r.shape,
		Field:  joinPath(r.path, field),
		Reason: fmt.Sprintf(format, args...),
	}
}

// Fail records a custom validation failure for field.
func (r *Reader) Fail(field string, format string, args ...any) {
	r.failf(field, format, args...)
}

// Err returns the first decoding failure, if any.
func (r *Reader) Err() error {
	return *r.err
}

// Has reports whether field is present (null counts as present).
func (r *Reader) Has(field string) bool {
	_, ok := r.fields[field]
	return ok
}

func (r *Reader) lookup(field string, required bool) (gjson.Result, bool) {
	if *r.err != nil {
		return gjson.Result{}, false
	}
	r.used[field] = true
	v, ok := r.fields[field]
	if !ok {
		if required {
			r.failf(field, "missing required field")
		}
		return gjson.Result{}, false
	}
	if v.Type == gjson.Null && !required {
		return gjson.Result{}, false
	}
	return v, true
}

func (r *Reader) expect(field string, v gjson.Result, want string, ok bool) bool {
	if ok {
		return true
	}
	r.failf(field, "expected %s, got %s", want, kindOf(v))
	return false
}

func (r *Reader) str(field string, required bool) (string, bool) {
	v, ok := r.lookup(field, required)
	if !ok || !r.expect(field, v, "string", v.Type == gjson.String) {
		return "", false
	}
	return v.Str, true
}

// String reads a required string field.
func (r *Reader) String(field string) string {
	s, _ := r.str(field, true)
	return s
}

// OptionalString reads an optional string field.
func (r *Reader) OptionalString(field string) (string, bool) {
	return r.str(field, false)
}

func (r *Reader) integer(field string, required bool) (int64, bool) {
	v, ok := r.lookup(field, required)
	if !ok || !r.expect(field, v, "integer", v.Type == gjson.Number) {
		return 0, false
	}
	n, err := strconv.ParseInt(v.Raw, 10, 64)
	if err != nil {
		r.failf(field, "expected integer, got %s", v.Raw)
		return 0, false
	}
	return n, true
}

// Int reads a required integer field.
func (r *Reader) Int(field string) int64 {
	n, _ := r.integer(field, true)
	return n
}

// OptionalInt reads an optional integer field.
func (r *Reader) OptionalInt(field string) (int64, bool) {
	return r.integer(field, false)
}

func (r *Reader) float(field string, required bool) (float64, bool) {
	v, ok := r.lookup(field, required)
	if !ok || !r.expect(field, v, "number", v.Type == gjson.Number) {
		return 0, false
	}
	return v.Num, true
}

// Float reads a required number field.
func (r *Reader) Float(field string) float64 {
	f, _ := r.float(field, true)
	return f
}

// OptionalFloat reads an optional number field.
func (r *Reader) OptionalFloat(field string) (float64, bool) {
	return r.float(field, false)
}

func (r *Reader) boolean(field string, required bool) (bool, bool) {
	v, ok := r.lookup(field, required)
	if !ok || !r.expect(field, v, "boolean", v.Type == gjson.True || v.Type == gjson.False) {
		return false, false
	}
	return v.Type == gjson.True, true
}

// Bool reads a required boolean field.
func (r *Reader) Bool(field string) bool {
	b, _ := r.boolean(field, true)
	return b
}

// OptionalBool reads an optional boolean field.
func (r *Reader) OptionalBool(field string) (bool, bool) {
	return r.boolean(field, false)
}

// Raw returns the raw JSON of a required field of any kind.
func (r *Reader) Raw(field string) json.RawMessage {
	v, ok := r.lookup(field, true)
	if !ok {
		return nil
	}
	return json.RawMessage(v.Raw)
}

// OptionalRaw returns the raw JSON of an optional field.
func (r *Reader) OptionalRaw(field string) (json.RawMessage, bool) {
	v, ok := r.lookup(field, false)
	if !ok {
		return nil, false
	}
	return json.RawMessage(v.Raw), true
}

// Object returns a reader over a required nested object.
func (r *Reader) Object(field string) *Reader {
	v, ok := r.lookup(field, true)
	if ok {
		r.expect(field, v, "object", v.IsObject())
	}
	return r.child(field, v)
}

// OptionalObject returns a reader over an optional nested object.
func (r *Reader) OptionalObject(field string) (*Reader, bool) {
	v, ok := r.lookup(field, false)
	if !ok || !r.expect(field, v, "object", v.IsObject()) {
		return nil, false
	}
	return r.child(field, v), true
}

func (r *Reader) array(field string, required bool) ([]gjson.Result, bool) {
	v, ok := r.lookup(field, required)
	if !ok || !r.expect(field, v, "array", v.IsArray()) {
		return nil, false
	}
	return v.Array(), true
}

// Strings reads a required array of strings.
func (r *Reader) Strings(field string) []string {
	items, ok := r.array(field, true)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		if item.Type != gjson.String {
			r.failf(joinPath(field, strconv.Itoa(i)), "expected string, got %s", kindOf(item))
			return nil
		}
		out = append(out, item.Str)
	}
	return out
}

// OptionalStrings reads an optional array of strings.
func (r *Reader) OptionalStrings(field string) ([]string, bool) {
	if _, ok := r.lookup(field, false); !ok {
		return nil, false
	}
	return r.Strings(field), *r.err == nil
}

// Objects reads a required array of objects.
func (r *Reader) Objects(field string) []*Reader {
	items, ok := r.array(field, true)
	if !ok {
		return nil
	}
	out := make([]*Reader, 0, len(items))
	for i, item := range items {
		name := joinPath(field, strconv.Itoa(i))
		if !r.expect(name, item, "object", item.IsObject()) {
			return nil
		}
		out = append(out, r.child(name, item))
	}
	return out
}

// Values reads an optional array of arbitrary JSON values.
func (r *Reader) Values(field string) []any {
	items, ok := r.array(field, false)
	if !ok {
		return nil
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, valueOf(item))
	}
	return out
}

// AdditionalData returns the properties no accessor has read so far, in
// document order, or nil when every property was claimed. Call it last.
func (r *Reader) AdditionalData() *Object {
	if *r.err != nil {
		return nil
	}
	var extra *Object
	for _, k := range r.keys {
		if r.used[k] {
			continue
		}
		if extra == nil {
			extra = NewObject()
		}
		extra.Set(k, valueOf(r.fields[k]))
	}
	return extra
}

// Field decodes a required field through dec.
func Field[T any](r *Reader, field string, dec Decoder[T]) T {
	raw := r.Raw(field)
	return decodeInto(r, field, raw, dec)
}

// OptionalField decodes an optional field through dec.
func OptionalField[T any](r *Reader, field string, dec Decoder[T]) (T, bool) {
	raw, ok := r.OptionalRaw(field)
	if !ok {
		var zero T
		return zero, false
	}
	v := decodeInto(r, field, raw, dec)
	return v, r.Err() == nil
}

// List decodes every element of a required array field through dec.
func List[T any](r *Reader, field string, dec Decoder[T]) []T {
	items, ok := r.array(field, true)
	if !ok {
		return nil
	}
	out := make([]T, 0, len(items))
	for i, item := range items {
		v := decodeInto(r, joinPath(field, strconv.Itoa(i)), []byte(item.Raw), dec)
		if r.Err() != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}

// EnumField reads a required enum token.
func EnumField[T comparable](r *Reader, field string, e *Enum[T]) T {
	tok := r.String(field)
	if r.Err() != nil {
		var zero T
		return zero
	}
	v, err := e.Parse(tok)
	if err != nil {
		r.failf(field, "%s", reasonOf(err))
	}
	return v
}

// OptionalEnumField reads an optional enum token.
func OptionalEnumField[T comparable](r *Reader, field string, e *Enum[T]) (T, bool) {
	tok, ok := r.OptionalString(field)
	if !ok {
		var zero T
		return zero, false
	}
	v, err := e.Parse(tok)
	if err != nil {
		r.failf(field, "%s", reasonOf(err))
		return v, false
	}
	return v, true
}

func decodeInto[T any](r *Reader, field string, raw []byte, dec Decoder[T]) T {
	var zero T
	if r.Err() != nil {
		return zero
	}
	v, err := dec(raw)
	if err != nil {
		r.failf(field, "%s", reasonOf(err))
		return zero
	}
	return v
}

// reasonOf flattens nested decode errors so the outer path stays readable.
func reasonOf(err error) string {
	var de *DecodeError
	if errors.As(err, &de) {
		if de.Field == "" {
			return de.Reason
		}
		return "field " + strconv.Quote(de.Field) + ": " + de.Reason
	}
	return err.Error()
}
