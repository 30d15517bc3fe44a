package engine

import "errors"

// Sentinel errors for engine bindings.
var (
	// ErrEmptyPath is returned when StartExtraction is called without an archive path.
	ErrEmptyPath = errors.New("archive path is empty")

	// ErrNoCommand is returned when an ExecBinding has no engine command configured.
	ErrNoCommand = errors.New("engine command not configured")

	// ErrBindingClosed is returned by StartExtraction after Close.
	ErrBindingClosed = errors.New("engine binding closed")

	// ErrTimeout is reported when an extraction exceeds its configured timeout.
	ErrTimeout = errors.New("extraction timed out")

	// ErrUnknownStep is returned when a wire line names an unknown step.
	ErrUnknownStep = errors.New("unknown step")

	// ErrUnknownEventType is returned when a wire line has an unknown type.
	ErrUnknownEventType = errors.New("unknown event type")
)
