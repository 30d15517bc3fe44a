package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TheOriginalAyaka/discord-package-app/internal/features"
	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
	"github.com/TheOriginalAyaka/discord-package-app/internal/pubsub"
	"github.com/TheOriginalAyaka/discord-package-app/internal/session"
)

// Span names, attribute keys and event names.
const (
	SpanSession       = "session.extract"
	SpanStartRejected = "session.start_rejected"

	AttrSessionID  = "session.id"
	AttrGeneration = "session.generation"
	AttrSource     = "session.source"
	AttrAnalytics  = "session.analytics_requested"
	AttrResult     = "session.result"
	AttrPhase      = "session.phase"
	AttrMessage    = "message"

	EventPhaseChanged   = "phase.changed"
	EventProgress       = "progress"
	EventAnalyticsError = "analytics.failed"
)

// Recorder turns session changes into spans: one span per session, ended when
// the session finishes. Safe for concurrent use.
type Recorder struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewRecorder creates a recorder that starts spans on tracer.
func NewRecorder(tracer trace.Tracer) *Recorder {
	return &Recorder{
		tracer: tracer,
		spans:  make(map[string]trace.Span),
	}
}

// Run records every change of a snapshot stream until ctx is done or the
// stream closes. Spans still open at that point are ended.
func (r *Recorder) Run(ctx context.Context, sub <-chan pubsub.Event[session.State]) {
	session.Follow(ctx, sub, r.Record)
	r.endAll()
}

// Record applies one change.
func (r *Recorder) Record(ch session.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := ch.State
	switch ch.Kind {
	case session.ChangeStarted:
		_, span := r.tracer.Start(context.Background(), SpanSession,
			trace.WithTimestamp(nonZero(s.StartedAt)),
			trace.WithAttributes(
				attribute.String(AttrSessionID, s.SessionID),
				attribute.Int64(AttrGeneration, int64(s.Generation)), //nolint:gosec // G115: generations stay far below MaxInt64
				attribute.String(AttrSource, string(s.Source)),
				attribute.Bool(AttrAnalytics, s.Requested.Enabled(features.Analytics)),
			),
		)
		r.spans[s.SessionID] = span

	case session.ChangePhase:
		if span, ok := r.spans[ch.SessionID]; ok {
			span.AddEvent(EventPhaseChanged, trace.WithAttributes(attribute.String(AttrPhase, s.Phase.String())))
		}

	case session.ChangeProgress:
		if span, ok := r.spans[ch.SessionID]; ok {
			span.AddEvent(EventProgress, trace.WithAttributes(attribute.String(AttrMessage, s.ProgressMessage)))
		}

	case session.ChangeFinished:
		span, ok := r.spans[ch.SessionID]
		if !ok {
			log.Debug(log.CatTrace, "Finished session without span", "session", ch.SessionID)
			return
		}
		delete(r.spans, ch.SessionID)
		finishSpan(span, ch)

	case session.ChangeRejected:
		_, span := r.tracer.Start(context.Background(), SpanStartRejected)
		span.SetStatus(codes.Error, s.Failure.Text())
		span.End()
	}
}

func finishSpan(span trace.Span, ch session.Change) {
	s := ch.State
	span.SetAttributes(attribute.String(AttrResult, string(ch.Result)))

	switch ch.Result {
	case session.ResultSucceeded:
		span.SetStatus(codes.Ok, "")
	case session.ResultAnalyticsFailed:
		span.AddEvent(EventAnalyticsError, trace.WithAttributes(attribute.String(AttrMessage, s.AnalyticsError)))
		span.SetStatus(codes.Ok, "")
	case session.ResultFailed:
		span.SetStatus(codes.Error, s.Failure.Text())
	}

	end := time.Now()
	if ch.SessionID == s.SessionID && !s.FinishedAt.IsZero() {
		end = s.FinishedAt
	}
	span.End(trace.WithTimestamp(end))
}

// Open returns the number of sessions with an unfinished span.
func (r *Recorder) Open() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spans)
}

func (r *Recorder) endAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, span := range r.spans {
		span.SetAttributes(attribute.String(AttrResult, string(session.ResultUnknown)))
		span.End()
		delete(r.spans, id)
	}
}

func nonZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
