// Package protocol implements the WebDriver BiDi envelope layer.
//
// Every WebSocket text frame carries one JSON message. Before decoding a
// message body the receiver peeks at its discriminant fields ("type", "id",
// "method") to classify it, in the same way a framed protocol reads its fixed
// header before the body:
//
//	{"type":"success","id":N,"result":{...}}     -> MsgTypeResponse
//	{"type":"error","id":N|null,"error":"..."}   -> MsgTypeError
//	{"type":"event","method":"m.e","params":{}}  -> MsgTypeEvent
//
// Messages from remote ends that omit "type" are classified by the presence
// of "id" (response or error) versus "method" without "id" (event).
package protocol

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// ErrMalformedMessage marks inbound text that cannot be classified.
var ErrMalformedMessage = errors.New("malformed message")

// MsgType is the classification of one inbound message.
type MsgType byte

const (
	MsgTypeUnknown  MsgType = 0
	MsgTypeResponse MsgType = 1 // Successful command result
	MsgTypeError    MsgType = 2 // Command failure reported by the remote end
	MsgTypeEvent    MsgType = 3 // Unsolicited notification
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeResponse:
		return "response"
	case MsgTypeError:
		return "error"
	case MsgTypeEvent:
		return "event"
	}
	return "unknown"
}

// Header is what Peek learns about a message without decoding its body.
type Header struct {
	MsgType MsgType
	ID      int64 // Valid only when HasID is set
	HasID   bool
	Method  string // Set for events
}

// MessageError wraps a failure to decode an inbound message whose header was
// readable, so the dispatcher can still route it to the awaiting command.
type MessageError struct {
	Header *Header
	Err    error
}

func (e *MessageError) Error() string {
	if e.Header == nil {
		return fmt.Sprintf("malformed message: %v", e.Err)
	}
	kind := "message"
	if e.Header.MsgType != MsgTypeUnknown {
		kind = e.Header.MsgType.String()
	}
	if e.Header.HasID {
		return fmt.Sprintf("malformed %s for command %d: %v", kind, e.Header.ID, e.Err)
	}
	return fmt.Sprintf("malformed %s: %v", kind, e.Err)
}

func (e *MessageError) Unwrap() error {
	return e.Err
}

// Peek validates data as JSON and classifies it from its discriminant fields.
// Once a command id has been read, every later failure is a *MessageError
// carrying that id.
func Peek(data []byte) (*Header, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedMessage)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected object", ErrMalformedMessage)
	}

	fields := root.Map()
	h := &Header{}

	if id, ok := fields["id"]; ok && id.Type != gjson.Null {
		if id.Type != gjson.Number {
			return nil, fmt.Errorf("%w: id must be an integer", ErrMalformedMessage)
		}
		n, err := strconv.ParseInt(id.Raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: id must be an integer, got %s", ErrMalformedMessage, id.Raw)
		}
		h.ID, h.HasID = n, true
	}

	malformed := func(format string, args ...any) error {
		err := fmt.Errorf("%w: "+format, append([]any{ErrMalformedMessage}, args...)...)
		if h.HasID {
			return &MessageError{Header: h, Err: err}
		}
		return err
	}
	if m, ok := fields["method"]; ok && m.Type == gjson.String {
		h.Method = m.Str
	}

	typ, hasType := fields["type"]
	if hasType && typ.Type != gjson.String {
		return nil, malformed("type must be a string")
	}

	switch {
	case hasType && typ.Str == "success":
		if !h.HasID {
			return nil, malformed("success without id")
		}
		h.MsgType = MsgTypeResponse
	case hasType && typ.Str == "error":
		h.MsgType = MsgTypeError
	case hasType && typ.Str == "event":
		if h.Method == "" {
			return nil, malformed("event without method")
		}
		h.MsgType = MsgTypeEvent
	case hasType:
		return nil, malformed("unknown type %q", typ.Str)
	case !h.HasID && h.Method != "":
		h.MsgType = MsgTypeEvent
	case h.HasID && fields["error"].Exists():
		h.MsgType = MsgTypeError
	case h.HasID:
		h.MsgType = MsgTypeResponse
	default:
		return nil, malformed("neither id nor method")
	}
	return h, nil
}
