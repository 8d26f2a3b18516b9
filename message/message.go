// Package message defines the WebDriver BiDi envelopes exchanged over a connection.
//
// Outbound traffic is always a Command. Inbound traffic is exactly one of a
// success Response, an ErrorResponse or an Event, wrapped in an Inbound:
//
//	-> {"id":1,"method":"session.status","params":{}}
//	<- {"type":"success","id":1,"result":{"ready":true,"message":""}}
//	<- {"type":"error","id":2,"error":"invalid argument","message":"..."}
//	<- {"type":"event","method":"log.entryAdded","params":{...}}
package message

import (
	"encoding/json"
	"fmt"

	"mini-bidi/codec"
)

// Type is the inbound discriminant carried in the "type" field.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeEvent   Type = "event"
)

// Command is a caller-issued request expecting exactly one correlated response.
type Command struct {
	ID     int64  // Unique and strictly increasing per connection
	Method string // "<module>.<command>", e.g. "session.status"
	Params any    // Marshalled with encoding/json; nil becomes {}
}

// Response is a successful command result.
type Response struct {
	ID             int64
	Result         json.RawMessage
	AdditionalData *codec.Object
}

// ErrorResponse is a command failure reported by the remote end. It is data,
// not a transport failure: the connection is healthy when one arrives.
type ErrorResponse struct {
	ID             *int64 // nil when the remote end could not attribute the error to a command
	Code           string // The BiDi error code, e.g. "no such frame"
	Message        string
	Stacktrace     string
	AdditionalData *codec.Object
}

func (e *ErrorResponse) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Event is an unsolicited notification from the remote end.
type Event struct {
	Method         string
	Params         json.RawMessage
	AdditionalData *codec.Object
}

// Inbound is one decoded inbound message. Exactly one of Response, Error and
// Event is set, matching Type.
type Inbound struct {
	Type     Type
	Response *Response
	Error    *ErrorResponse
	Event    *Event
}

// ID returns the command id the message answers, if any.
func (m *Inbound) ID() (int64, bool) {
	switch {
	case m.Response != nil:
		return m.Response.ID, true
	case m.Error != nil && m.Error.ID != nil:
		return *m.Error.ID, true
	}
	return 0, false
}
