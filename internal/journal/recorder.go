package journal

import (
	"context"
	"time"

	"github.com/TheOriginalAyaka/discord-package-app/internal/features"
	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
	"github.com/TheOriginalAyaka/discord-package-app/internal/pubsub"
	"github.com/TheOriginalAyaka/discord-package-app/internal/session"
)

// Recorder writes session changes to the journal. Write errors are logged and
// never reach the coordinator.
type Recorder struct {
	db  *DB
	now func() time.Time
}

// NewRecorder creates a recorder writing to db.
func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

// Run records every change of a snapshot stream until ctx is done or the
// stream closes.
func (r *Recorder) Run(ctx context.Context, sub <-chan pubsub.Event[session.State]) {
	if n, err := r.db.CloseAbandoned(ctx, string(session.ResultUnknown), r.now()); err != nil {
		log.ErrorErr(log.CatJournal, "Failed to close abandoned attempts", err)
	} else if n > 0 {
		log.Info(log.CatJournal, "Closed abandoned attempts", "count", n)
	}
	session.Follow(ctx, sub, r.Record)
}

// Record applies one change. Phase and progress changes are not stored.
func (r *Recorder) Record(ch session.Change) {
	ctx := context.Background()
	s := ch.State

	switch ch.Kind {
	case session.ChangeStarted:
		a := Attempt{
			SessionID:          s.SessionID,
			Generation:         s.Generation,
			Source:             string(s.Source),
			ArchivePath:        s.ArchivePath,
			AnalyticsRequested: s.Requested.Enabled(features.Analytics),
			StartedAt:          r.stamp(s.StartedAt),
		}
		if _, err := r.db.Begin(ctx, a); err != nil {
			log.ErrorErr(log.CatJournal, "Failed to record attempt", err, "session", s.SessionID)
		}

	case session.ChangeFinished:
		var failure, analyticsErr string
		finishedAt := r.now()
		if ch.SessionID == s.SessionID {
			if s.Failure != nil && s.Failure.Kind == session.FailurePrimaryPhase {
				failure = s.Failure.Text()
			}
			analyticsErr = s.AnalyticsError
			finishedAt = r.stamp(s.FinishedAt)
		}
		if err := r.db.Finish(ctx, ch.SessionID, string(ch.Result), failure, analyticsErr, finishedAt); err != nil {
			log.ErrorErr(log.CatJournal, "Failed to finish attempt", err, "session", ch.SessionID)
		}

	case session.ChangeRejected:
		a := Attempt{
			Source:             string(session.SourceEngine),
			Generation:         s.Generation,
			AnalyticsRequested: s.Enabled.Enabled(features.Analytics),
			StartedAt:          r.now(),
		}
		if err := r.db.Rejected(ctx, a, string(session.ResultRejected), s.Failure.Text()); err != nil {
			log.ErrorErr(log.CatJournal, "Failed to record rejected start", err)
		}
	}
}

func (r *Recorder) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return r.now()
	}
	return t
}
