// Package engine defines the boundary to the archive extraction engine.
//
// The engine runs extractions in the background and reports back through a
// stream of events. Every event carries the session id returned by
// StartExtraction so the receiver can discard events from sessions it no
// longer cares about. Event is a closed set: only the four types in this file
// implement it.
package engine

import "fmt"

// Step identifies which part of an extraction an event belongs to.
type Step string

const (
	// StepPrimary covers the overview data set (users, messages, channels).
	StepPrimary Step = "primary"
	// StepAnalytics covers the event statistics data set.
	StepAnalytics Step = "analytics"
	// StepScaffolding covers opening and reading the archive itself.
	StepScaffolding Step = "scaffolding"
)

// ParseStep converts a wire step name. The engine calls the primary step
// "messages"; "primary" is accepted too.
func ParseStep(s string) (Step, error) {
	switch s {
	case "messages", "primary":
		return StepPrimary, nil
	case "analytics":
		return StepAnalytics, nil
	case "scaffolding":
		return StepScaffolding, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStep, s)
	}
}

// WireName returns the name used on the engine protocol.
func (s Step) WireName() string {
	if s == StepPrimary {
		return "messages"
	}
	return string(s)
}

// AbortsSession reports whether an error on this step ends the whole session.
// Only analytics errors are isolated.
func (s Step) AbortsSession() bool {
	return s != StepAnalytics
}

// Event is a notification from the engine about one extraction session.
type Event interface {
	// Session returns the id of the session the event belongs to.
	Session() string
	isEvent()
}

// ProgressEvent carries human-readable status text.
type ProgressEvent struct {
	SessionID string
	Step      Step
	Message   string
}

// ErrorEvent reports a failed step.
type ErrorEvent struct {
	SessionID string
	Step      Step
	Title     string
	Message   string
}

// CompleteEvent delivers the primary result.
type CompleteEvent struct {
	SessionID string
	Result    PrimaryResult
}

// AnalyticsCompleteEvent delivers the analytics result.
type AnalyticsCompleteEvent struct {
	SessionID string
	Result    AnalyticsResult
}

func (e ProgressEvent) Session() string          { return e.SessionID }
func (e ErrorEvent) Session() string             { return e.SessionID }
func (e CompleteEvent) Session() string          { return e.SessionID }
func (e AnalyticsCompleteEvent) Session() string { return e.SessionID }

func (ProgressEvent) isEvent()          {}
func (ErrorEvent) isEvent()             {}
func (CompleteEvent) isEvent()          {}
func (AnalyticsCompleteEvent) isEvent() {}

// Kind returns a short name for logging.
func Kind(e Event) string {
	switch e.(type) {
	case ProgressEvent:
		return "progress"
	case ErrorEvent:
		return "error"
	case CompleteEvent:
		return "complete"
	case AnalyticsCompleteEvent:
		return "analyticsComplete"
	default:
		return "unknown"
	}
}
