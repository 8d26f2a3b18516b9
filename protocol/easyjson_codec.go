package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"

	"mini-bidi/codec"
	"mini-bidi/message"
)

// EasyJSONCodec streams envelopes through easyjson's lexer and writer. Params
// implementing easyjson.Marshaler skip reflection entirely. It produces the
// same Inbound values as JSONCodec.
type EasyJSONCodec struct{}

func (c *EasyJSONCodec) Encode(cmd *message.Command) ([]byte, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	var params []byte
	switch p := cmd.Params.(type) {
	case nil:
		params = []byte("{}")
	case easyjson.Marshaler:
		b, err := easyjson.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode command %d (%s): %w", cmd.ID, cmd.Method, err)
		}
		params = b
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode command %d (%s): %w", cmd.ID, cmd.Method, err)
		}
		params = b
	}

	out := jwriter.Writer{}
	out.RawString(`{"id":`)
	out.Int64(cmd.ID)
	out.RawString(`,"method":`)
	out.String(cmd.Method)
	out.RawString(`,"params":`)
	out.Raw(params, nil)
	out.RawByte('}')
	if out.Error != nil {
		return nil, fmt.Errorf("encode command %d (%s): %w", cmd.ID, cmd.Method, out.Error)
	}
	return out.BuildBytes()
}

type rawField struct {
	key   string
	value []byte
}

func (c *EasyJSONCodec) Decode(data []byte) (*message.Inbound, error) {
	h, err := Peek(data)
	if err != nil {
		return nil, err
	}
	fields, err := scanObject(data)
	if err != nil {
		return nil, &MessageError{Header: h, Err: err}
	}

	var in *message.Inbound
	switch h.MsgType {
	case MsgTypeResponse:
		in, err = easyResponse(fields)
	case MsgTypeError:
		in, err = easyError(fields)
	case MsgTypeEvent:
		in, err = easyEvent(fields)
	}
	if err != nil {
		return nil, &MessageError{Header: h, Err: err}
	}
	return in, nil
}

func (c *EasyJSONCodec) Type() CodecType {
	return CodecTypeEasyJSON
}

// scanObject splits the top-level object into its fields in document order.
// A repeated key keeps its first position and its last value.
func scanObject(data []byte) ([]rawField, error) {
	in := jlexer.Lexer{Data: data}
	var fields []rawField
	index := make(map[string]int)

	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.String()
		in.WantColon()
		raw := append([]byte(nil), in.Raw()...)
		if i, ok := index[key]; ok {
			fields[i].value = raw
		} else {
			index[key] = len(fields)
			fields = append(fields, rawField{key: key, value: raw})
		}
		in.WantComma()
	}
	in.Delim('}')
	in.Consumed()
	if err := in.Error(); err != nil {
		return nil, err
	}
	return fields, nil
}

// envelope gives typed access to scanned fields and reports failures the way
// codec.Reader does.
type envelope struct {
	shape  string
	fields []rawField
	used   map[string]bool
	err    error
}

func newEnvelope(shape string, fields []rawField) *envelope {
	return &envelope{shape: shape, fields: fields, used: make(map[string]bool)}
}

func (e *envelope) fail(field, format string, args ...any) {
	if e.err == nil {
		e.err = &codec.DecodeError{Shape: e.shape, Field: field, Reason: fmt.Sprintf(format, args...)}
	}
}

func (e *envelope) lookup(field string, required bool) ([]byte, bool) {
	if e.err != nil {
		return nil, false
	}
	e.used[field] = true
	for _, f := range e.fields {
		if f.key != field {
			continue
		}
		if !required && string(f.value) == "null" {
			return nil, false
		}
		return f.value, true
	}
	if required {
		e.fail(field, "missing required field")
	}
	return nil, false
}

func (e *envelope) str(field string, required bool) (string, bool) {
	raw, ok := e.lookup(field, required)
	if !ok {
		return "", false
	}
	if raw[0] != '"' {
		e.fail(field, "expected string, got %s", kindOfRaw(raw))
		return "", false
	}
	l := jlexer.Lexer{Data: raw}
	s := l.String()
	if err := l.Error(); err != nil {
		e.fail(field, "%v", err)
		return "", false
	}
	return s, true
}

func (e *envelope) integer(field string, required bool) (int64, bool) {
	raw, ok := e.lookup(field, required)
	if !ok {
		return 0, false
	}
	l := jlexer.Lexer{Data: raw}
	n := l.Int64()
	if l.Error() != nil {
		if kindOfRaw(raw) == "number" {
			e.fail(field, "expected integer, got %s", raw)
		} else {
			e.fail(field, "expected integer, got %s", kindOfRaw(raw))
		}
		return 0, false
	}
	return n, true
}

func (e *envelope) additionalData() *codec.Object {
	if e.err != nil {
		return nil
	}
	var extra *codec.Object
	for _, f := range e.fields {
		if e.used[f.key] {
			continue
		}
		v, err := codec.ParseValue(f.value)
		if err != nil {
			e.fail(f.key, "%v", err)
			return nil
		}
		if extra == nil {
			extra = codec.NewObject()
		}
		extra.Set(f.key, v)
	}
	return extra
}

func easyResponse(fields []rawField) (*message.Inbound, error) {
	e := newEnvelope("Response", fields)
	e.str("type", false)
	resp := &message.Response{}
	resp.ID, _ = e.integer("id", true)
	if raw, ok := e.lookup("result", true); ok {
		resp.Result = json.RawMessage(raw)
	}
	resp.AdditionalData = e.additionalData()
	if e.err != nil {
		return nil, e.err
	}
	return &message.Inbound{Type: message.TypeSuccess, Response: resp}, nil
}

func easyError(fields []rawField) (*message.Inbound, error) {
	e := newEnvelope("ErrorResponse", fields)
	e.str("type", false)
	resp := &message.ErrorResponse{}
	resp.Code, _ = e.str("error", true)
	resp.Message, _ = e.str("message", true)
	if id, ok := e.integer("id", false); ok {
		resp.ID = &id
	}
	resp.Stacktrace, _ = e.str("stacktrace", false)
	resp.AdditionalData = e.additionalData()
	if e.err != nil {
		return nil, e.err
	}
	return &message.Inbound{Type: message.TypeError, Error: resp}, nil
}

func easyEvent(fields []rawField) (*message.Inbound, error) {
	e := newEnvelope("Event", fields)
	e.str("type", false)
	ev := &message.Event{}
	ev.Method, _ = e.str("method", true)
	if raw, ok := e.lookup("params", true); ok {
		if raw[0] != '{' {
			e.fail("params", "expected object, got %s", kindOfRaw(raw))
		}
		ev.Params = json.RawMessage(raw)
	}
	ev.AdditionalData = e.additionalData()
	if e.err != nil {
		return nil, e.err
	}
	return &message.Inbound{Type: message.TypeEvent, Event: ev}, nil
}

func kindOfRaw(raw []byte) string {
	if len(raw) == 0 {
		return "nothing"
	}
	switch raw[0] {
	case 'n':
		return "null"
	case 't', 'f':
		return "boolean"
	case '"':
		return "string"
	case '{':
		return "object"
	case '[':
		return "array"
	}
	return "number"
}
