// Package demo produces a scripted extraction session from bundled sample data.
//
// A demo session emits the same engine events a real extraction would, paced
// by a Clock: progress immediately, the primary result after PrimaryDelay and,
// when analytics was requested, the analytics result after AnalyticsDelay
// (both measured from the start of the session).
package demo

import (
	"sync"
	"time"

	"github.com/TheOriginalAyaka/discord-package-app/internal/engine"
	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
)

// Progress messages shown while a demo session runs.
const (
	MsgLoadingDemo      = "Loading demo..."
	MsgLoadingAnalytics = "Loading analytics..."
)

// Options controls demo pacing.
type Options struct {
	PrimaryDelay   time.Duration
	AnalyticsDelay time.Duration
}

// DefaultOptions matches the pacing of the mobile app's demo.
func DefaultOptions() Options {
	return Options{
		PrimaryDelay:   3 * time.Second,
		AnalyticsDelay: 10 * time.Second,
	}
}

// Source schedules demo sessions.
type Source struct {
	clock   Clock
	opts    Options
	fixture Fixture
}

// NewSource creates a Source backed by the embedded fixture.
func NewSource(clock Clock, opts Options) *Source {
	return NewSourceWithFixture(clock, opts, MustFixture())
}

// NewSourceWithFixture creates a Source that plays back fixture.
func NewSourceWithFixture(clock Clock, opts Options, fixture Fixture) *Source {
	if clock == nil {
		clock = RealClock{}
	}
	if opts.AnalyticsDelay < opts.PrimaryDelay {
		opts.AnalyticsDelay = opts.PrimaryDelay
	}
	return &Source{clock: clock, opts: opts, fixture: fixture}
}

// Schedule starts a demo session tagged with sessionID. Events are delivered
// through emit from a background goroutine, in order. Timers are armed before
// Schedule returns.
func (s *Source) Schedule(sessionID string, wantAnalytics bool, emit func(engine.Event)) *Run {
	r := &Run{
		sessionID: sessionID,
		primary:   s.clock.NewTimer(s.opts.PrimaryDelay),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if wantAnalytics {
		r.analytics = s.clock.NewTimer(s.opts.AnalyticsDelay)
	}

	log.Debug(log.CatDemo, "Demo scheduled",
		"session", sessionID, "analytics", wantAnalytics,
		"primaryDelay", s.opts.PrimaryDelay, "analyticsDelay", s.opts.AnalyticsDelay)

	go r.play(s.fixture, emit)
	return r
}

// Run is one scheduled demo session.
type Run struct {
	sessionID string
	primary   Timer
	analytics Timer // nil without analytics

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// SessionID returns the id the run was scheduled with.
func (r *Run) SessionID() string {
	return r.sessionID
}

// Stop cancels every pending timer. Safe to call more than once.
func (r *Run) Stop() {
	r.stopOnce.Do(func() {
		r.primary.Stop()
		if r.analytics != nil {
			r.analytics.Stop()
		}
		close(r.stop)
		log.Debug(log.CatDemo, "Demo stopped", "session", r.sessionID)
	})
}

// Done is closed once the run has emitted its last event or was stopped.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

func (r *Run) play(fixture Fixture, emit func(engine.Event)) {
	defer close(r.done)

	if !r.send(emit, engine.ProgressEvent{SessionID: r.sessionID, Step: engine.StepPrimary, Message: MsgLoadingDemo}) {
		return
	}

	// The analytics timer is only watched after the primary result went out,
	// so both firing together still yields Complete first.
	primaryC := r.primary.C()
	var analyticsC <-chan time.Time

	for {
		select {
		case <-r.stop:
			return

		case <-primaryC:
			primaryC = nil
			if !r.send(emit, engine.CompleteEvent{SessionID: r.sessionID, Result: fixture.Primary}) {
				return
			}
			if r.analytics == nil {
				return
			}
			if !r.send(emit, engine.ProgressEvent{SessionID: r.sessionID, Step: engine.StepAnalytics, Message: MsgLoadingAnalytics}) {
				return
			}
			analyticsC = r.analytics.C()

		case <-analyticsC:
			r.send(emit, engine.AnalyticsCompleteEvent{SessionID: r.sessionID, Result: fixture.Analytics})
			return
		}
	}
}

// send emits ev unless the run was stopped.
func (r *Run) send(emit func(engine.Event), ev engine.Event) bool {
	select {
	case <-r.stop:
		return false
	default:
	}
	emit(ev)
	return true
}
