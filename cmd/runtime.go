package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/TheOriginalAyaka/discord-package-app/internal/config"
	"github.com/TheOriginalAyaka/discord-package-app/internal/demo"
	"github.com/TheOriginalAyaka/discord-package-app/internal/engine"
	"github.com/TheOriginalAyaka/discord-package-app/internal/journal"
	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
	"github.com/TheOriginalAyaka/discord-package-app/internal/session"
	"github.com/TheOriginalAyaka/discord-package-app/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

// runtime is a running coordinator plus the consumers wired to its state
// stream: the tracing recorder and the journal recorder.
type runtime struct {
	coord    *session.Coordinator
	exec     *engine.ExecBinding
	provider *tracing.Provider
	journal  *journal.DB

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// runtimeOption adjusts how newRuntime builds the coordinator.
type runtimeOption func(*runtimeOptions)

type runtimeOptions struct {
	clock   demo.Clock
	binding engine.Binding
}

// withClock replaces the real clock used for demo sessions.
func withClock(clock demo.Clock) runtimeOption {
	return func(o *runtimeOptions) { o.clock = clock }
}

// withBinding replaces the engine process binding.
func withBinding(b engine.Binding) runtimeOption {
	return func(o *runtimeOptions) { o.binding = b }
}

// newRuntime starts a coordinator configured from c. The coordinator is
// ready to accept commands when newRuntime returns.
func newRuntime(ctx context.Context, c config.Config, opts ...runtimeOption) (*runtime, error) {
	o := runtimeOptions{clock: demo.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	rt := &runtime{}
	sessionOpts := []session.Option{
		session.WithClock(o.clock),
		session.WithEnabledFeatures(c.FeatureSet()),
		session.WithDemoSource(demo.NewSource(o.clock, demo.Options{
			PrimaryDelay:   c.Demo.PrimaryDelay,
			AnalyticsDelay: c.Demo.AnalyticsDelay,
		})),
	}
	switch {
	case o.binding != nil:
		sessionOpts = append(sessionOpts, session.WithBinding(o.binding))
	case c.Engine.Command != "":
		rt.exec = engine.NewExecBinding(engine.ExecConfig{
			Command: c.Engine.Command,
			Args:    c.Engine.Args,
			Timeout: c.Engine.Timeout,
		})
		sessionOpts = append(sessionOpts, session.WithBinding(rt.exec))
	default:
		log.Info(log.CatEngine, "No engine configured, only demo sessions are available")
	}

	provider, err := tracing.NewProvider(c.Tracing)
	if err != nil {
		rt.closeEngine()
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}
	rt.provider = provider

	if c.Journal.Enabled {
		db, err := journal.NewDB(config.ExpandHome(c.Journal.Path))
		if err != nil {
			rt.closeEngine()
			_ = provider.Shutdown(context.Background())
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		rt.journal = db
	}

	runCtx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel
	rt.coord = session.New(sessionOpts...)
	go rt.coord.Run(runCtx)
	if err := rt.coord.WaitForReady(runCtx); err != nil {
		rt.Close()
		return nil, err
	}

	// Subscriptions are taken here, before the consumers start, so they see
	// every snapshot from the first command on.
	if provider.Enabled() {
		sub := rt.coord.Subscribe(runCtx)
		rec := tracing.NewRecorder(provider.Tracer())
		rt.goConsume(func() { rec.Run(runCtx, sub) })
	}
	if rt.journal != nil {
		sub := rt.coord.Subscribe(runCtx)
		rec := journal.NewRecorder(rt.journal)
		rt.goConsume(func() { rec.Run(runCtx, sub) })
	}
	return rt, nil
}

func (rt *runtime) goConsume(fn func()) {
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		fn()
	}()
}

func (rt *runtime) closeEngine() {
	if rt.exec != nil {
		rt.exec.Close()
	}
}

// Close stops the coordinator, waits for the consumers to drain and releases
// the engine, tracing and journal resources.
func (rt *runtime) Close() {
	if rt.coord != nil {
		rt.coord.Stop()
	}
	if rt.cancel != nil {
		rt.cancel()
	}
	rt.wg.Wait()
	if rt.exec != nil {
		if n := rt.exec.Running(); n > 0 {
			log.Info(log.CatEngine, "Stopping engine processes", "running", n)
		}
	}
	rt.closeEngine()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if rt.provider != nil {
		if err := rt.provider.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatTrace, "Failed to shut down tracing", err)
		}
	}
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			log.ErrorErr(log.CatJournal, "Failed to close journal", err)
		}
	}
}
