package cmd

import (
	"fmt"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/ui"
)

// CommandError names the step of a command that failed.
type CommandError struct {
	Op  string
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) Print() {
	ui.PrintError(e.Error())
}

func newError(op string, err error) *CommandError {
	return &CommandError{Op: op, Err: err}
}
