package engine

import "context"

// Binding starts and cancels extractions on an engine and exposes its event stream.
type Binding interface {
	// StartExtraction begins extracting the archive at localPath and returns
	// the id the engine assigned to the session. Analytics is extracted after
	// the primary data set only when wantAnalytics is true. The call returns
	// as soon as the work is scheduled; results arrive on Events.
	StartExtraction(ctx context.Context, localPath string, wantAnalytics bool) (string, error)

	// CancelExtraction asks the engine to stop the session. It returns false
	// when the id is unknown or the session already finished.
	CancelExtraction(sessionID string) bool

	// Events returns the stream of notifications for every session started
	// through this binding.
	Events() <-chan Event
}
