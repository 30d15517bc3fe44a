package session

import (
	"context"
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/TheOriginalAyaka/discord-package-app/internal/demo"
	"github.com/TheOriginalAyaka/discord-package-app/internal/engine"
	"github.com/TheOriginalAyaka/discord-package-app/internal/engine/mock"
	"github.com/TheOriginalAyaka/discord-package-app/internal/features"
)

// syncHarness drives the loop handlers directly so every step is applied
// before the next one is drawn.
type syncHarness struct {
	c       *Coordinator
	binding *mock.Binding
	ids     []string
}

func newSyncHarness() (*syncHarness, context.CancelFunc) {
	binding := mock.NewBinding()
	c := New(WithBinding(binding), WithClock(demo.NewManualClock(epoch)))
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return &syncHarness{c: c, binding: binding}, c.cancel
}

func (h *syncHarness) do(req *request) response {
	req.reply = make(chan response, 1)
	h.c.handleRequest(req)
	return <-req.reply
}

func (h *syncHarness) pickID(t *rapid.T) string {
	if len(h.ids) == 0 || rapid.IntRange(0, 9).Draw(t, "unknownID") == 0 {
		return "never-issued"
	}
	return rapid.SampledFrom(h.ids).Draw(t, "id")
}

func checkInvariants(t *rapid.T, s State) {
	if (s.ProgressMessage == "") == s.IsLive() {
		t.Fatalf("progress %q inconsistent with phase %s", s.ProgressMessage, s.Phase)
	}
	if s.Analytics != nil && !s.WantsAnalytics() {
		t.Fatalf("analytics result present but not requested")
	}
	if s.Phase == PhaseExtractingAnalytics && (!s.WantsAnalytics() || s.Primary == nil) {
		t.Fatalf("analytics phase without request or primary result")
	}
	if s.IsLive() && s.SessionID == "" {
		t.Fatalf("live session without id")
	}
}

func TestCoordinator_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h, cancel := newSyncHarness()
		defer cancel()
		rejectStart := false
		h.binding.StartFunc = func(context.Context, string, bool) (string, error) {
			if rejectStart {
				return "", errors.New("rejected")
			}
			id := rapid.StringMatching(`s-[a-z0-9]{6}`).Draw(t, "newID")
			return id, nil
		}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			before := h.c.State()
			action := rapid.IntRange(0, 8).Draw(t, "action")

			switch action {
			case 0: // start
				rejectStart = rapid.IntRange(0, 4).Draw(t, "reject") == 0
				analytics := rapid.Bool().Draw(t, "analytics")
				resp := h.do(&request{kind: reqStart, path: "/tmp/a.zip", opts: StartOptions{IncludeAnalytics: analytics}})
				after := h.c.State()
				switch {
				case before.IsLive():
					if !errors.Is(resp.err, ErrSessionLive) {
						t.Fatalf("start while live: got %v", resp.err)
					}
					if after.SessionID != before.SessionID || after.Generation != before.Generation || after.Phase != before.Phase {
						t.Fatalf("start while live changed the session")
					}
				case resp.err != nil:
					if after.Generation != before.Generation || after.Phase != before.Phase {
						t.Fatalf("rejected start changed the session")
					}
					if after.Failure == nil || after.Failure.Kind != FailureStartRejected {
						t.Fatalf("rejected start not surfaced")
					}
				default:
					if after.Generation != before.Generation+1 {
						t.Fatalf("accepted start did not bump generation")
					}
					if after.Phase != PhaseExtractingPrimary || after.Primary != nil || after.Analytics != nil {
						t.Fatalf("accepted start did not clear results")
					}
					h.ids = append(h.ids, after.SessionID)
				}

			case 1: // cancel
				resp := h.do(&request{kind: reqCancel})
				after := h.c.State()
				if resp.ok != before.IsLive() {
					t.Fatalf("cancel returned %v with phase %s", resp.ok, before.Phase)
				}
				if resp.ok && (after.Phase != PhaseCancelled || after.Generation != before.Generation+1) {
					t.Fatalf("cancel did not retire the session")
				}
				if !resp.ok && after.Generation != before.Generation {
					t.Fatalf("no-op cancel bumped generation")
				}

			case 2: // reset
				h.do(&request{kind: reqReset})
				after := h.c.State()
				if after.Phase != PhaseIdle || after.Generation != before.Generation+1 || after.Primary != nil {
					t.Fatalf("reset did not clear state")
				}

			case 3: // toggle features
				set := features.Of()
				if rapid.Bool().Draw(t, "enableAnalytics") {
					set = set.With(features.Analytics)
				}
				h.do(&request{kind: reqSetFeatures, features: set})
				after := h.c.State()
				if after.Enabled != set || after.Requested != before.Requested {
					t.Fatalf("feature change leaked into the live session")
				}

			default: // engine event
				id := h.pickID(t)
				var ev engine.Event
				switch action {
				case 4:
					ev = engine.ProgressEvent{SessionID: id, Step: engine.StepPrimary, Message: "working"}
				case 5:
					ev = engine.CompleteEvent{SessionID: id, Result: engine.PrimaryResult{MessageCount: 1}}
				case 6:
					ev = engine.AnalyticsCompleteEvent{SessionID: id, Result: engine.AnalyticsResult{AllEvents: 1}}
				default:
					step := rapid.SampledFrom([]engine.Step{engine.StepPrimary, engine.StepAnalytics, engine.StepScaffolding}).Draw(t, "step")
					ev = engine.ErrorEvent{SessionID: id, Step: step, Title: "failed", Message: "boom"}
				}

				h.c.handleEvent(ev)
				after := h.c.State()
				if id != before.SessionID || !before.IsLive() {
					if after != before {
						t.Fatalf("event for %s changed state of %s (%s)", id, before.SessionID, before.Phase)
					}
				}
				if after.Generation != before.Generation {
					t.Fatalf("event changed generation")
				}
			}

			after := h.c.State()
			if after.Generation < before.Generation {
				t.Fatalf("generation went backwards: %d -> %d", before.Generation, after.Generation)
			}
			checkInvariants(t, after)
		}
	})
}
