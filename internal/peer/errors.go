package peer

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState = errors.New("invalid signaling state")
	ErrApplyFailed  = errors.New("apply failed")
)

// NegotiationError is returned by every negotiation operation. Kind is
// ErrInvalidState or ErrApplyFailed.
type NegotiationError struct {
	Op   string
	Kind error
	Err  error
}

func (e *NegotiationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *NegotiationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalidState(op string, format string, args ...any) *NegotiationError {
	return &NegotiationError{Op: op, Kind: ErrInvalidState, Err: fmt.Errorf(format, args...)}
}

func applyFailed(op string, err error) *NegotiationError {
	return &NegotiationError{Op: op, Kind: ErrApplyFailed, Err: err}
}
