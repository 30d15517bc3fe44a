// Package mock provides a scriptable engine.Binding for tests.
//
// Binding records every StartExtraction and CancelExtraction call and lets the
// test inject events for any session id, including ids that were cancelled or
// never issued:
//
//	b := mock.NewBinding()
//	id, _ := b.StartExtraction(ctx, "/tmp/package.zip", true)
//	b.Progress(id, engine.StepPrimary, "Reading messages...")
//	b.Complete(id, engine.PrimaryResult{MessageCount: 3})
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/TheOriginalAyaka/discord-package-app/internal/engine"
)

// StartCall records one StartExtraction invocation.
type StartCall struct {
	Path          string
	WantAnalytics bool
	SessionID     string
}

// Binding is a mock implementation of engine.Binding.
type Binding struct {
	// StartFunc overrides StartExtraction when set.
	StartFunc func(ctx context.Context, path string, wantAnalytics bool) (string, error)

	// CancelResult is returned by CancelExtraction for known ids. Defaults to true.
	CancelResult bool

	events chan engine.Event

	mu        sync.Mutex
	seq       int
	starts    []StartCall
	cancelled []string
}

// NewBinding creates a mock binding with a generously buffered event channel.
func NewBinding() *Binding {
	return &Binding{
		CancelResult: true,
		events:       make(chan engine.Event, 1024),
	}
}

var _ engine.Binding = (*Binding)(nil)

// StartExtraction returns sequential ids "session-1", "session-2", ...
func (b *Binding) StartExtraction(ctx context.Context, path string, wantAnalytics bool) (string, error) {
	if b.StartFunc != nil {
		id, err := b.StartFunc(ctx, path, wantAnalytics)
		if err == nil {
			b.mu.Lock()
			b.starts = append(b.starts, StartCall{Path: path, WantAnalytics: wantAnalytics, SessionID: id})
			b.mu.Unlock()
		}
		return id, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	id := fmt.Sprintf("session-%d", b.seq)
	b.starts = append(b.starts, StartCall{Path: path, WantAnalytics: wantAnalytics, SessionID: id})
	return id, nil
}

// CancelExtraction records the id and returns CancelResult.
func (b *Binding) CancelExtraction(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, sessionID)
	return b.CancelResult
}

// Events returns the injected event stream.
func (b *Binding) Events() <-chan engine.Event {
	return b.events
}

// Emit injects an arbitrary event.
func (b *Binding) Emit(ev engine.Event) {
	b.events <- ev
}

// Progress injects a progress event.
func (b *Binding) Progress(id string, step engine.Step, msg string) {
	b.Emit(engine.ProgressEvent{SessionID: id, Step: step, Message: msg})
}

// Fail injects an error event.
func (b *Binding) Fail(id string, step engine.Step, title, msg string) {
	b.Emit(engine.ErrorEvent{SessionID: id, Step: step, Title: title, Message: msg})
}

// Complete injects a primary result.
func (b *Binding) Complete(id string, r engine.PrimaryResult) {
	b.Emit(engine.CompleteEvent{SessionID: id, Result: r})
}

// AnalyticsComplete injects an analytics result.
func (b *Binding) AnalyticsComplete(id string, r engine.AnalyticsResult) {
	b.Emit(engine.AnalyticsCompleteEvent{SessionID: id, Result: r})
}

// Starts returns a copy of the recorded StartExtraction calls.
func (b *Binding) Starts() []StartCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]StartCall, len(b.starts))
	copy(out, b.starts)
	return out
}

// LastSessionID returns the id of the most recent successful start.
func (b *Binding) LastSessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.starts) == 0 {
		return ""
	}
	return b.starts[len(b.starts)-1].SessionID
}

// Cancelled returns a copy of the ids passed to CancelExtraction.
func (b *Binding) Cancelled() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.cancelled))
	copy(out, b.cancelled)
	return out
}
