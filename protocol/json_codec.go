package protocol

import (
	"encoding/json"
	"fmt"

	"mini-bidi/codec"
	"mini-bidi/message"
)

// JSONCodec encodes with encoding/json and decodes through codec.Reader,
// which validates every envelope field and keeps unknown ones.
type JSONCodec struct{}

type wireCommand struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

func (c *JSONCodec) Encode(cmd *message.Command) ([]byte, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	params := cmd.Params
	if params == nil {
		params = struct{}{}
	}
	b, err := json.Marshal(wireCommand{ID: cmd.ID, Method: cmd.Method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode command %d (%s): %w", cmd.ID, cmd.Method, err)
	}
	return b, nil
}

func (c *JSONCodec) Decode(data []byte) (*message.Inbound, error) {
	h, err := Peek(data)
	if err != nil {
		return nil, err
	}

	var in *message.Inbound
	switch h.MsgType {
	case MsgTypeResponse:
		var resp *message.Response
		if resp, err = responseShape(data); err == nil {
			in = &message.Inbound{Type: message.TypeSuccess, Response: resp}
		}
	case MsgTypeError:
		var errResp *message.ErrorResponse
		if errResp, err = errorShape(data); err == nil {
			in = &message.Inbound{Type: message.TypeError, Error: errResp}
		}
	case MsgTypeEvent:
		var ev *message.Event
		if ev, err = eventShape(data); err == nil {
			in = &message.Inbound{Type: message.TypeEvent, Event: ev}
		}
	}
	if err != nil {
		return nil, &MessageError{Header: h, Err: err}
	}
	return in, nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}

var responseShape = codec.Shape("Response", func(r *codec.Reader) *message.Response {
	r.OptionalString("type")
	return &message.Response{
		ID:             r.Int("id"),
		Result:         r.Raw("result"),
		AdditionalData: r.AdditionalData(),
	}
})

var errorShape = codec.Shape("ErrorResponse", func(r *codec.Reader) *message.ErrorResponse {
	r.OptionalString("type")
	e := &message.ErrorResponse{
		Code:    r.String("error"),
		Message: r.String("message"),
	}
	if id, ok := r.OptionalInt("id"); ok {
		e.ID = &id
	}
	e.Stacktrace, _ = r.OptionalString("stacktrace")
	e.AdditionalData = r.AdditionalData()
	return e
})

var eventShape = codec.Shape("Event", func(r *codec.Reader) *message.Event {
	r.OptionalString("type")
	ev := &message.Event{Method: r.String("method")}
	r.Object("params")
	ev.Params = r.Raw("params")
	ev.AdditionalData = r.AdditionalData()
	return ev
})
