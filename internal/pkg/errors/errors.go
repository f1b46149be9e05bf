package errors

import "errors"

var (
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoPendingWork is returned by selectors when the queue is drained.
	ErrNoPendingWork = errors.New("no pending work")
)
