package session

import (
	"context"

	"github.com/TheOriginalAyaka/discord-package-app/internal/pubsub"
)

// Result classifies how a session ended.
type Result string

const (
	ResultSucceeded       Result = "succeeded"
	ResultAnalyticsFailed Result = "analytics_failed" // overview usable, analytics missing
	ResultFailed          Result = "failed"
	ResultCancelled       Result = "cancelled"
	ResultReset           Result = "reset"
	ResultRejected        Result = "rejected"
	// ResultUnknown is reported when a subscriber skipped the snapshot that
	// finished the session.
	ResultUnknown Result = "unknown"
)

// ChangeKind identifies a Change.
type ChangeKind int

const (
	ChangeStarted ChangeKind = iota
	ChangePhase
	ChangeProgress
	ChangeFinished
	ChangeRejected
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeStarted:
		return "started"
	case ChangePhase:
		return "phase"
	case ChangeProgress:
		return "progress"
	case ChangeFinished:
		return "finished"
	case ChangeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Change is one observable step derived from two consecutive snapshots.
type Change struct {
	Kind ChangeKind
	// SessionID is the session the change belongs to. For ChangeFinished this
	// is the session that ended, even when State already moved on.
	SessionID string
	Result    Result // ChangeFinished only
	State     State
}

// Diff reports the changes between prev and next in order. Subscribers may
// skip snapshots, so a session can finish and another start in one step.
func Diff(prev, next State) []Change {
	var out []Change

	if next.Failure != nil && next.Failure != prev.Failure && next.Failure.Kind == FailureStartRejected {
		out = append(out, Change{Kind: ChangeRejected, Result: ResultRejected, State: next})
	}

	if prev.IsLive() && (!next.IsLive() || prev.SessionID != next.SessionID) {
		out = append(out, Change{
			Kind:      ChangeFinished,
			SessionID: prev.SessionID,
			Result:    finishResult(prev, next),
			State:     next,
		})
	}

	if !next.IsLive() {
		return out
	}
	if !prev.IsLive() || prev.SessionID != next.SessionID {
		return append(out, Change{Kind: ChangeStarted, SessionID: next.SessionID, State: next})
	}
	if prev.Phase != next.Phase {
		out = append(out, Change{Kind: ChangePhase, SessionID: next.SessionID, State: next})
	}
	if prev.ProgressMessage != next.ProgressMessage {
		out = append(out, Change{Kind: ChangeProgress, SessionID: next.SessionID, State: next})
	}
	return out
}

func finishResult(prev, next State) Result {
	switch {
	case next.SessionID != prev.SessionID && next.SessionID == "" && next.Phase == PhaseIdle:
		return ResultReset
	case next.SessionID != prev.SessionID:
		return ResultUnknown
	case next.Phase == PhaseCancelled:
		return ResultCancelled
	case next.Failure != nil && next.Failure.Kind == FailurePrimaryPhase:
		return ResultFailed
	case next.AnalyticsError != "":
		return ResultAnalyticsFailed
	case next.Primary != nil:
		return ResultSucceeded
	default:
		return ResultUnknown
	}
}

// Follow feeds the changes of a snapshot stream to fn until ctx is done or the
// stream closes. The zero State is the baseline, so a live session found in
// the first snapshot is reported as started.
func Follow(ctx context.Context, sub <-chan pubsub.Event[State], fn func(Change)) {
	var prev State
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			for _, ch := range Diff(prev, ev.Payload) {
				fn(ch)
			}
			prev = ev.Payload
		}
	}
}
