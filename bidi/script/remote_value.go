package script

import (
	"encoding/json"
	"fmt"
	"math"

	"mini-bidi/codec"
)

// RemoteValue mirrors a JavaScript value living in the browser. Type is the
// wire discriminant ("string", "array", "node", ...). Value holds:
//
//	undefined, null          nil
//	string, bigint, date     string
//	number                   float64 (NaN, -0 and the infinities included)
//	boolean                  bool
//	array, set, nodelist     []RemoteValue
//	object, map              []Property
//	regexp                   RegExpValue
//
// and is nil for the handle-only types (function, promise, window, ...).
type RemoteValue struct {
	Type           string
	Handle         string
	InternalID     string
	SharedID       string
	Value          any
	AdditionalData *codec.Object
}

// Property is one entry of an object or map. Key is a string for string keys
// and a RemoteValue otherwise.
type Property struct {
	Key   any
	Value RemoteValue
}

type RegExpValue struct {
	Pattern string
	Flags   string
}

func (v RemoteValue) AsString() (string, bool) {
	s, ok := v.Value.(string)
	return s, ok && v.Type == "string"
}

func (v RemoteValue) AsNumber() (float64, bool) {
	f, ok := v.Value.(float64)
	return f, ok
}

func (v RemoteValue) AsBool() (bool, bool) {
	b, ok := v.Value.(bool)
	return b, ok
}

func (v RemoteValue) Items() []RemoteValue {
	items, _ := v.Value.([]RemoteValue)
	return items
}

func (v RemoteValue) Properties() []Property {
	props, _ := v.Value.([]Property)
	return props
}

// Get returns the value of the string key k of an object or map.
func (v RemoteValue) Get(k string) (RemoteValue, bool) {
	for _, p := range v.Properties() {
		if key, ok := p.Key.(string); ok && key == k {
			return p.Value, true
		}
	}
	return RemoteValue{}, false
}

var remoteValues *codec.Union[RemoteValue]

// DecodeRemoteValue decodes one serialized RemoteValue.
func DecodeRemoteValue(raw []byte) (RemoteValue, error) {
	return remoteValues.Decode(raw)
}

// The union refers to itself through list and mapping values, so it is
// assembled in init rather than in its declaration.
func init() {
	u := codec.NewUnion[RemoteValue]("RemoteValue", "type")
	for _, tag := range []string{"undefined", "null"} {
		u.Variant(tag, remoteShape(nil))
	}
	for _, tag := range []string{"string", "bigint", "date"} {
		u.Variant(tag, remoteShape(func(r *codec.Reader) any { return r.String("value") }))
	}
	u.Variant("boolean", remoteShape(func(r *codec.Reader) any { return r.Bool("value") }))
	u.Variant("number", remoteShape(readNumber))
	for _, tag := range []string{"array", "set", "nodelist", "htmlcollection"} {
		u.Variant(tag, remoteShape(readList))
	}
	for _, tag := range []string{"object", "map"} {
		u.Variant(tag, remoteShape(readMapping))
	}
	u.Variant("regexp", remoteShape(func(r *codec.Reader) any {
		re := r.Object("value")
		v := RegExpValue{Pattern: re.String("pattern")}
		v.Flags, _ = re.OptionalString("flags")
		return v
	}))
	for _, tag := range []string{
		"symbol", "function", "weakmap", "weakset", "generator", "error", "proxy",
		"promise", "typedarray", "arraybuffer", "node", "window",
	} {
		u.Variant(tag, remoteShape(nil))
	}
	// Types added by newer browsers still decode, keeping their payload.
	u.Fallback(remoteShape(nil))
	remoteValues = u
}

func remoteShape(value func(r *codec.Reader) any) codec.Decoder[RemoteValue] {
	return codec.Shape("RemoteValue", func(r *codec.Reader) RemoteValue {
		v := RemoteValue{Type: r.String("type")}
		v.Handle, _ = r.OptionalString("handle")
		v.InternalID, _ = r.OptionalString("internalId")
		v.SharedID, _ = r.OptionalString("sharedId")
		if value != nil {
			v.Value = value(r)
		}
		v.AdditionalData = r.AdditionalData()
		return v
	})
}

func readNumber(r *codec.Reader) any {
	raw := r.Raw("value")
	if r.Err() != nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		r.Fail("value", "invalid number %s", raw)
		return nil
	}
	switch n := v.(type) {
	case float64:
		return n
	case string:
		switch n {
		case "NaN":
			return math.NaN()
		case "-0":
			return math.Copysign(0, -1)
		case "Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
		r.Fail("value", "unknown special number %q", n)
	default:
		r.Fail("value", "expected number, got %s", raw)
	}
	return nil
}

// readList decodes the optional "value" array. It is absent once the
// serialization depth is exhausted.
func readList(r *codec.Reader) any {
	if !r.Has("value") {
		return nil
	}
	return codec.List(r, "value", DecodeRemoteValue)
}

var propertyShape codec.Decoder[Property] = func(raw []byte) (Property, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
		return Property{}, &codec.DecodeError{Shape: "MappingRemoteValue", Reason: "expected [key, value] pair"}
	}
	var p Property
	var key string
	if err := json.Unmarshal(pair[0], &key); err == nil {
		p.Key = key
	} else {
		kv, err := DecodeRemoteValue(pair[0])
		if err != nil {
			return Property{}, fmt.Errorf("key: %w", err)
		}
		p.Key = kv
	}
	v, err := DecodeRemoteValue(pair[1])
	if err != nil {
		return Property{}, err
	}
	p.Value = v
	return p, nil
}

func readMapping(r *codec.Reader) any {
	if !r.Has("value") {
		return nil
	}
	return codec.List(r, "value", propertyShape)
}

// LocalValue is an argument sent to the browser: either a serialized value
// or a reference to a RemoteValue by handle or shared id.
type LocalValue struct {
	Type     string
	Value    any
	Handle   string
	SharedID string
}

func LocalString(s string) LocalValue { return LocalValue{Type: "string", Value: s} }
func LocalBool(b bool) LocalValue { return LocalValue{Type: "boolean", Value: b} }
func LocalUndefined() LocalValue { return LocalValue{Type: "undefined"} }
func LocalNull() LocalValue { return LocalValue{Type: "null"} }
func Reference(handle string) LocalValue { return LocalValue{Handle: handle} }

// LocalNumber encodes the special values the way the browser expects them.
func LocalNumber(f float64) LocalValue {
	switch {
	case math.IsNaN(f):
		return LocalValue{Type: "number", Value: "NaN"}
	case math.IsInf(f, 1):
		return LocalValue{Type: "number", Value: "Infinity"}
	case math.IsInf(f, -1):
		return LocalValue{Type: "number", Value: "-Infinity"}
	case f == 0 && math.Signbit(f):
		return LocalValue{Type: "number", Value: "-0"}
	}
	return LocalValue{Type: "number", Value: f}
}

// LocalArray serializes items as a JavaScript array.
func LocalArray(items ...LocalValue) LocalValue {
	return LocalValue{Type: "array", Value: items}
}

// LocalObject serializes string-keyed properties as a plain object, in the
// order given.
func LocalObject(pairs ...LocalProperty) LocalValue {
	return LocalValue{Type: "object", Value: pairs}
}

type LocalProperty struct {
	Key   string
	Value LocalValue
}

func (p LocalProperty) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Key, p.Value})
}

func (v LocalValue) MarshalJSON() ([]byte, error) {
	if v.Type == "" {
		switch {
		case v.Handle != "":
			return json.Marshal(map[string]string{"handle": v.Handle})
		case v.SharedID != "":
			return json.Marshal(map[string]string{"sharedId": v.SharedID})
		}
		return nil, codec.ErrNoVariant
	}
	var body any
	if v.Value != nil {
		body = struct {
			Value any `json:"value"`
		}{v.Value}
	}
	return codec.EncodeVariant("type", v.Type, body)
}
