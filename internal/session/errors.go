package session

import "errors"

// Sentinel errors returned by Coordinator commands.
var (
	// ErrSessionLive is returned by Start and StartDemo while a session is running.
	ErrSessionLive = errors.New("an extraction session is already running")

	// ErrStartRejected is returned when the engine refused to start a session.
	ErrStartRejected = errors.New("engine rejected the extraction")

	// ErrCoordinatorStopped is returned when a command is issued before Run
	// or after the coordinator shut down.
	ErrCoordinatorStopped = errors.New("session coordinator is not running")

	// ErrNoEngine is returned by Start when no engine binding is configured.
	ErrNoEngine = errors.New("no extraction engine configured")

	// ErrEmptySessionID is wrapped into ErrStartRejected when the engine
	// accepted a start without returning an id.
	ErrEmptySessionID = errors.New("engine returned an empty session id")
)
