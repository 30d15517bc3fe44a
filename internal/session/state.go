package session

import (
	"time"

	"github.com/TheOriginalAyaka/discord-package-app/internal/engine"
	"github.com/TheOriginalAyaka/discord-package-app/internal/features"
)

// Progress messages set by the coordinator itself.
const (
	MsgLoadingUserData  = "Loading user data..."
	MsgLoadingDemo      = "Loading demo..."
	MsgLoadingAnalytics = "Loading analytics..."
)

// Phase is the coarse lifecycle position of the current session.
type Phase int

const (
	// PhaseIdle means no extraction is running. Results from the last
	// session, if any, are still held.
	PhaseIdle Phase = iota
	// PhaseExtractingPrimary means the overview data set is being extracted.
	PhaseExtractingPrimary
	// PhaseExtractingAnalytics means the overview is done and analytics is running.
	PhaseExtractingAnalytics
	// PhaseCancelled means the user cancelled the last session.
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseExtractingPrimary:
		return "extracting_primary"
	case PhaseExtractingAnalytics:
		return "extracting_analytics"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsLive reports whether a session in this phase is still running.
func (p Phase) IsLive() bool {
	return p == PhaseExtractingPrimary || p == PhaseExtractingAnalytics
}

// Source identifies what produces a session's events.
type Source string

const (
	SourceNone   Source = ""
	SourceEngine Source = "engine"
	SourceDemo   Source = "demo"
)

// FailureKind classifies user-visible failures.
type FailureKind string

const (
	// FailureStartRejected means the engine refused to start; the session never began.
	FailureStartRejected FailureKind = "start_rejected"
	// FailurePrimaryPhase aborts the whole session.
	FailurePrimaryPhase FailureKind = "primary_phase"
	// FailureAnalyticsPhase is isolated; the primary result stays usable.
	FailureAnalyticsPhase FailureKind = "analytics_phase"
)

// Failure is a user-visible error with a title and message.
type Failure struct {
	Kind    FailureKind
	Title   string
	Message string
}

// Text renders the failure the way it is shown to users: "Title: Message".
func (f Failure) Text() string {
	switch {
	case f.Title == "":
		return f.Message
	case f.Message == "":
		return f.Title
	default:
		return f.Title + ": " + f.Message
	}
}

// State is an immutable snapshot of the coordinator. A new value is published
// on every transition; pointer fields are never mutated after publication.
type State struct {
	Phase      Phase
	SessionID  string
	Generation uint64
	Source     Source

	// ArchivePath is the archive being extracted (empty for demo sessions).
	ArchivePath string

	// Requested is the feature set of the current session.
	Requested features.Set
	// Enabled is the configured feature set for new sessions.
	Enabled features.Set

	ProgressMessage string

	Primary        *engine.PrimaryResult
	Analytics      *engine.AnalyticsResult
	AnalyticsError string

	// Failure is the last primary-phase or start failure.
	Failure *Failure

	StartedAt  time.Time
	FinishedAt time.Time
}

// IsLive reports whether a session is running.
func (s State) IsLive() bool { return s.Phase.IsLive() }

// IsLoadingPrimary reports whether the overview is still being extracted.
func (s State) IsLoadingPrimary() bool { return s.Phase == PhaseExtractingPrimary }

// IsLoadingAnalytics reports whether analytics is being extracted.
func (s State) IsLoadingAnalytics() bool { return s.Phase == PhaseExtractingAnalytics }

// WantsAnalytics reports whether the current session requested analytics.
func (s State) WantsAnalytics() bool { return s.Requested.Enabled(features.Analytics) }

// StartedSince reports how long the session has been (or was) running.
func (s State) StartedSince(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := now
	if !s.FinishedAt.IsZero() {
		end = s.FinishedAt
	}
	return end.Sub(s.StartedAt)
}

// Stats are coordinator diagnostics counters.
type Stats struct {
	Commands       int64
	RejectedStarts int64
	Accepted       int64 // events that changed state
	Stale          int64 // events from a retired or unknown generation
	OutOfPhase     int64 // events that made no sense for the current phase
	Duplicates     int64 // repeated terminal events
}

// AnalyticsFailure returns the analytics error as a Failure, or nil.
func (s State) AnalyticsFailure() *Failure {
	if s.AnalyticsError == "" {
		return nil
	}
	return &Failure{Kind: FailureAnalyticsPhase, Title: "Analytics unavailable", Message: s.AnalyticsError}
}
