package relay

import "github.com/pkg/errors"

var (
	// ErrViewNotFound means the handle has no registered state, either
	// because it was never attached or already detached.
	ErrViewNotFound = errors.New("view not found")
	// ErrViewAlreadyAttached means Attach was called twice for one handle.
	ErrViewAlreadyAttached = errors.New("view already attached")
	// ErrUnknownCommand means the host dispatched an opcode this relay does
	// not implement. That is a protocol mismatch, not a runtime condition.
	ErrUnknownCommand = errors.New("unknown command opcode")
	// ErrUnsupportedMethod means a remote source asked for an HTTP method
	// other than GET or POST.
	ErrUnsupportedMethod = errors.New("unsupported navigation method")
	// ErrMessagingDisabled means postMessage was dispatched without the
	// messaging bridge enabled for the view.
	ErrMessagingDisabled = errors.New("messaging bridge not enabled")
	// ErrMissingArgument means a command was dispatched without its
	// required argument.
	ErrMissingArgument = errors.New("missing command argument")
)
