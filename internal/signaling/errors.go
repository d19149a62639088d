package signaling

import (
	"errors"
	"fmt"
)

var (
	ErrDisconnected = errors.New("signaling disconnected")
	ErrSendFailed   = errors.New("signaling send failed")
	ErrHandshake    = errors.New("signaling handshake failed")
)

// Error carries the operation that failed. Err wraps one of the sentinels
// above, possibly joined with the transport error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("signaling %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func opError(op string, kind, cause error) *Error {
	if cause == nil {
		return &Error{Op: op, Err: kind}
	}
	return &Error{Op: op, Err: errors.Join(kind, cause)}
}
