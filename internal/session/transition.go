package session

import (
	"time"

	"github.com/TheOriginalAyaka/discord-package-app/internal/engine"
)

// Outcome describes what applying an event did.
type Outcome int

const (
	// Applied means the event produced a new state.
	Applied Outcome = iota
	// OutOfPhase means the event does not belong to the current phase.
	OutOfPhase
	// Duplicate means a terminal event arrived after its phase had already ended.
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case OutOfPhase:
		return "out_of_phase"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Apply computes the state after ev. The caller has already checked that ev
// belongs to s's generation. s is never modified.
func Apply(s State, ev engine.Event, now time.Time) (State, Outcome) {
	switch e := ev.(type) {
	case engine.ProgressEvent:
		return applyProgress(s, e)
	case engine.CompleteEvent:
		return applyComplete(s, e, now)
	case engine.AnalyticsCompleteEvent:
		return applyAnalyticsComplete(s, e, now)
	case engine.ErrorEvent:
		return applyError(s, e, now)
	default:
		return s, OutOfPhase
	}
}

func applyProgress(s State, e engine.ProgressEvent) (State, Outcome) {
	if !s.Phase.IsLive() {
		return s, OutOfPhase
	}
	// Loading phases always carry text.
	if e.Message == "" || e.Message == s.ProgressMessage {
		return s, Applied
	}
	s.ProgressMessage = e.Message
	return s, Applied
}

func applyComplete(s State, e engine.CompleteEvent, now time.Time) (State, Outcome) {
	switch s.Phase {
	case PhaseExtractingPrimary:
	case PhaseExtractingAnalytics, PhaseIdle:
		if s.Primary != nil {
			return s, Duplicate
		}
		return s, OutOfPhase
	default:
		return s, OutOfPhase
	}

	result := e.Result
	s.Primary = &result
	s.Failure = nil
	s.AnalyticsError = ""
	if s.WantsAnalytics() {
		s.Phase = PhaseExtractingAnalytics
		s.ProgressMessage = MsgLoadingAnalytics
		return s, Applied
	}
	s.Phase = PhaseIdle
	s.ProgressMessage = ""
	s.FinishedAt = now
	return s, Applied
}

func applyAnalyticsComplete(s State, e engine.AnalyticsCompleteEvent, now time.Time) (State, Outcome) {
	if s.Phase != PhaseExtractingAnalytics {
		if s.Phase == PhaseIdle && s.Analytics != nil {
			return s, Duplicate
		}
		return s, OutOfPhase
	}
	result := e.Result
	s.Analytics = &result
	s.Phase = PhaseIdle
	s.ProgressMessage = ""
	s.FinishedAt = now
	return s, Applied
}

// applyError splits by phase: while the overview runs any aborting step ends
// the session, once it is done every non-primary error is an analytics failure.
func applyError(s State, e engine.ErrorEvent, now time.Time) (State, Outcome) {
	switch s.Phase {
	case PhaseExtractingPrimary:
		if !e.Step.AbortsSession() {
			return s, OutOfPhase
		}
		s.Phase = PhaseIdle
		s.ProgressMessage = ""
		s.Failure = &Failure{Kind: FailurePrimaryPhase, Title: e.Title, Message: e.Message}
		s.FinishedAt = now
		return s, Applied

	case PhaseExtractingAnalytics:
		if e.Step == engine.StepPrimary {
			return s, OutOfPhase
		}
		s.Phase = PhaseIdle
		s.ProgressMessage = ""
		s.AnalyticsError = e.Message
		if s.AnalyticsError == "" {
			s.AnalyticsError = e.Title
		}
		s.FinishedAt = now
		return s, Applied

	case PhaseIdle:
		// A repeat of the error that ended the session.
		if s.Failure != nil && s.Failure.Kind == FailurePrimaryPhase && e.Step.AbortsSession() {
			return s, Duplicate
		}
		if s.AnalyticsError != "" && e.Step != engine.StepPrimary {
			return s, Duplicate
		}
		return s, OutOfPhase

	default:
		return s, OutOfPhase
	}
}
