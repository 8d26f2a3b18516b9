package message

import "errors"

// Transport failures. They are distinct from an ErrorResponse, which means
// the remote end received the command and rejected it.
var (
	ErrTimeout          = errors.New("command timed out")
	ErrConnectionClosed = errors.New("connection closed")
	ErrNotStarted       = errors.New("transport not started")
)
