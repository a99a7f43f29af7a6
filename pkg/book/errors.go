package book

import "errors"

var (
	// ErrInvalidOrder rejects orders with a non-positive price or amount.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrInvalidCommand rejects a malformed invocation (bad side, bad
	// numeric literal, wrong arity).
	ErrInvalidCommand = errors.New("invalid command")

	// ErrInvalidState is returned by Trade when a named price has no
	// resting level.
	ErrInvalidState = errors.New("invalid state")

	// ErrBackendUnavailable wraps storage failures. A mutation that fails
	// with it has not committed any partial state.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
