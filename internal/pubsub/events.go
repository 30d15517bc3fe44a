// Package pubsub fans values out to subscribers: session state snapshots to
// the recorders and the monitor, log entries to the monitor's log tail.
package pubsub

import "time"

// EventType says how an event's payload relates to what the subscriber has
// already seen.
type EventType string

const (
	// SnapshotEvent is a complete value the subscriber has not seen before:
	// the first value published, or the retained value replayed on Subscribe.
	SnapshotEvent EventType = "snapshot"
	// UpdatedEvent replaces the previously delivered value.
	UpdatedEvent EventType = "updated"
	// AppendedEvent is one more item of a sequence, such as a log entry.
	AppendedEvent EventType = "appended"
)

// Event is one delivery.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}
