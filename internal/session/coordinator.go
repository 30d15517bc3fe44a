// Package session provides the extraction session coordinator.
//
// The Coordinator is a single-goroutine loop that owns all session state. It
// processes, in strict FIFO order, three kinds of input: user commands (Start,
// StartDemo, Cancel, Reset, SetEnabledFeatures), engine events, and demo timer
// events. After every transition it publishes a new immutable State snapshot.
//
// Every session is tagged with a generation number when it starts. Start,
// Cancel and Reset bump the generation, and an event is only applied when the
// session it belongs to carries the current generation. This is what makes
// Cancel deterministic: once it returns, nothing from the cancelled session can
// change state, no matter how late its events arrive.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/TheOriginalAyaka/discord-package-app/internal/demo"
	"github.com/TheOriginalAyaka/discord-package-app/internal/engine"
	"github.com/TheOriginalAyaka/discord-package-app/internal/features"
	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
	"github.com/TheOriginalAyaka/discord-package-app/internal/pubsub"
)

// queueCapacity is the buffer size of the input queue.
const queueCapacity = 256

// StartOptions configures a new session.
type StartOptions struct {
	IncludeAnalytics bool
}

// OptionsFor returns StartOptions matching a feature set.
func OptionsFor(set features.Set) StartOptions {
	return StartOptions{IncludeAnalytics: set.Enabled(features.Analytics)}
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithBinding sets the engine binding. Without one, Start returns ErrNoEngine.
func WithBinding(b engine.Binding) Option {
	return func(c *Coordinator) {
		c.binding = b
	}
}

// WithDemoSource sets the demo source used by StartDemo.
func WithDemoSource(src *demo.Source) Option {
	return func(c *Coordinator) {
		c.demo = src
	}
}

// WithClock sets the clock used for timestamps and, unless WithDemoSource is
// also given, for demo timers.
func WithClock(clock demo.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithEnabledFeatures sets the initial feature set.
func WithEnabledFeatures(set features.Set) Option {
	return func(c *Coordinator) {
		c.initialEnabled = set
	}
}

// WithDemoIDGenerator overrides how demo session ids are generated.
func WithDemoIDGenerator(fn func() string) Option {
	return func(c *Coordinator) {
		c.newDemoID = fn
	}
}

// Coordinator owns the extraction session state machine.
type Coordinator struct {
	binding        engine.Binding
	demo           *demo.Source
	clock          demo.Clock
	newDemoID      func() string
	initialEnabled features.Set

	queue  chan queueItem
	state  atomic.Pointer[State]
	broker *pubsub.Broker[State]

	// Owned by the loop goroutine.
	tokens  map[string]uint64
	liveID  string
	demoRun *demo.Run
	retired *retiredSessions

	// Lifecycle management
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  atomic.Bool
	started  atomic.Bool
	readyCh  chan struct{}
	stopOnce sync.Once

	stats struct {
		commands, rejectedStarts, accepted, stale, outOfPhase, duplicates atomic.Int64
	}
}

type requestKind int

const (
	reqStart requestKind = iota
	reqStartDemo
	reqCancel
	reqReset
	reqSetFeatures
)

func (k requestKind) String() string {
	switch k {
	case reqStart:
		return "start"
	case reqStartDemo:
		return "start_demo"
	case reqCancel:
		return "cancel"
	case reqReset:
		return "reset"
	case reqSetFeatures:
		return "set_features"
	default:
		return "unknown"
	}
}

type request struct {
	kind     requestKind
	path     string
	opts     StartOptions
	features features.Set
	reply    chan response
}

type response struct {
	err error
	ok  bool
}

// queueItem is either a command (req != nil) or an event.
type queueItem struct {
	req   *request
	event engine.Event
}

// New creates a Coordinator. Call Run to start processing.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		newDemoID:      func() string { return "demo-" + uuid.NewString() },
		initialEnabled: features.Default,
		broker:         pubsub.NewRetainingBroker[State](16),
		tokens:         make(map[string]uint64),
		retired:        newRetiredSessions(retiredExpiration, retiredCleanupInterval),
		readyCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = demo.RealClock{}
	}
	if c.demo == nil {
		c.demo = demo.NewSource(c.clock, demo.DefaultOptions())
	}
	c.queue = make(chan queueItem, queueCapacity)

	initial := State{Phase: PhaseIdle, Enabled: c.initialEnabled}
	c.state.Store(&initial)
	c.broker.Publish(pubsub.SnapshotEvent, initial)
	return c
}

// Run processes input until ctx is cancelled or Stop is called.
// Run can only be called once - subsequent calls return immediately.
func (c *Coordinator) Run(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	c.running.Store(true)
	close(c.readyCh)
	log.Debug(log.CatSession, "Coordinator running")

	if c.binding != nil {
		c.wg.Add(1)
		go c.forwardEngineEvents()
	}

	defer func() {
		c.running.Store(false)
		c.shutdown()
		c.broker.Close()
		c.wg.Done()
		log.Debug(log.CatSession, "Coordinator stopped")
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case item := <-c.queue:
			if item.req != nil {
				c.handleRequest(item.req)
			} else {
				c.handleEvent(item.event)
			}
		}
	}
}

// WaitForReady blocks until Run has started.
func (c *Coordinator) WaitForReady(ctx context.Context) error {
	select {
	case <-c.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the loop down and waits for it to exit. A running engine
// session is cancelled and pending demo timers are stopped. Subscriber
// channels are closed.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
		c.broker.Close()
	})
}

// Start begins an engine extraction of the archive at path.
func (c *Coordinator) Start(path string, opts StartOptions) error {
	resp, err := c.submit(&request{kind: reqStart, path: path, opts: opts})
	if err != nil {
		return err
	}
	return resp.err
}

// StartDemo begins a scripted demo session using the enabled feature set.
func (c *Coordinator) StartDemo() error {
	resp, err := c.submit(&request{kind: reqStartDemo})
	if err != nil {
		return err
	}
	return resp.err
}

// Cancel stops the live session. It returns false when nothing was running.
// Once Cancel returns, no event from the cancelled session can change state.
func (c *Coordinator) Cancel() bool {
	resp, err := c.submit(&request{kind: reqCancel})
	if err != nil {
		return false
	}
	return resp.ok
}

// Reset returns to an empty Idle state, stopping anything in flight.
func (c *Coordinator) Reset() {
	if _, err := c.submit(&request{kind: reqReset}); err != nil {
		log.Debug(log.CatSession, "Reset ignored", "error", err)
	}
}

// SetEnabledFeatures changes the feature set for future sessions. The session
// in flight keeps the features it was started with.
func (c *Coordinator) SetEnabledFeatures(set features.Set) {
	if _, err := c.submit(&request{kind: reqSetFeatures, features: set}); err != nil {
		log.Debug(log.CatSession, "SetEnabledFeatures ignored", "error", err)
	}
}

// State returns the current snapshot.
func (c *Coordinator) State() State {
	return *c.state.Load()
}

// Subscribe returns a channel of state snapshots. The current state is
// delivered first. Slow subscribers may skip intermediate snapshots but always
// receive the newest one.
func (c *Coordinator) Subscribe(ctx context.Context) <-chan pubsub.Event[State] {
	return c.broker.Subscribe(ctx)
}

// Stats returns diagnostics counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Commands:       c.stats.commands.Load(),
		RejectedStarts: c.stats.rejectedStarts.Load(),
		Accepted:       c.stats.accepted.Load(),
		Stale:          c.stats.stale.Load(),
		OutOfPhase:     c.stats.outOfPhase.Load(),
		Duplicates:     c.stats.duplicates.Load(),
	}
}

// submit enqueues a command and waits until the loop has applied it.
func (c *Coordinator) submit(req *request) (response, error) {
	if !c.running.Load() {
		return response{}, ErrCoordinatorStopped
	}
	req.reply = make(chan response, 1)

	select {
	case c.queue <- queueItem{req: req}:
	case <-c.ctx.Done():
		return response{}, ErrCoordinatorStopped
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-c.ctx.Done():
		return response{}, ErrCoordinatorStopped
	}
}

// enqueueEvent hands an event to the loop. Used by the engine forwarder and
// demo runs; blocks until there is room or the coordinator stops.
func (c *Coordinator) enqueueEvent(ev engine.Event) {
	select {
	case c.queue <- queueItem{event: ev}:
	case <-c.ctx.Done():
	}
}

func (c *Coordinator) forwardEngineEvents() {
	defer c.wg.Done()
	events := c.binding.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				log.Debug(log.CatSession, "Engine event stream closed")
				return
			}
			c.enqueueEvent(ev)
		}
	}
}

func (c *Coordinator) handleRequest(req *request) {
	c.stats.commands.Add(1)
	log.Debug(log.CatSession, "Command", "kind", req.kind)

	var resp response
	switch req.kind {
	case reqStart:
		resp.err = c.start(req.path, req.opts)
	case reqStartDemo:
		resp.err = c.startDemo()
	case reqCancel:
		resp.ok = c.cancelLive()
	case reqReset:
		c.reset()
		resp.ok = true
	case reqSetFeatures:
		c.setFeatures(req.features)
		resp.ok = true
	}

	req.reply <- resp
}

func (c *Coordinator) start(path string, opts StartOptions) error {
	cur := c.State()
	if cur.IsLive() {
		c.stats.rejectedStarts.Add(1)
		log.Info(log.CatSession, "Start ignored, session already live",
			"session", cur.SessionID, "phase", cur.Phase)
		return ErrSessionLive
	}
	if c.binding == nil {
		c.stats.rejectedStarts.Add(1)
		return ErrNoEngine
	}

	id, err := c.binding.StartExtraction(c.ctx, path, opts.IncludeAnalytics)
	if err == nil && id == "" {
		err = ErrEmptySessionID
	}
	if err != nil {
		c.stats.rejectedStarts.Add(1)
		log.ErrorErr(log.CatSession, "Engine rejected start", err, "path", path)
		next := cur
		next.Failure = &Failure{
			Kind:    FailureStartRejected,
			Title:   "Could not start extraction",
			Message: err.Error(),
		}
		c.publish(next)
		return fmt.Errorf("%w: %w", ErrStartRejected, err)
	}

	next := c.begin(cur, id, SourceEngine, opts)
	next.ArchivePath = path
	next.ProgressMessage = MsgLoadingUserData
	c.publish(next)

	log.Info(log.CatSession, "Session started",
		"session", id, "generation", next.Generation, "analytics", opts.IncludeAnalytics, "path", path)
	return nil
}

func (c *Coordinator) startDemo() error {
	cur := c.State()
	if cur.IsLive() {
		c.stats.rejectedStarts.Add(1)
		log.Info(log.CatSession, "Demo ignored, session already live",
			"session", cur.SessionID, "phase", cur.Phase)
		return ErrSessionLive
	}

	opts := OptionsFor(cur.Enabled)
	id := c.newDemoID()
	next := c.begin(cur, id, SourceDemo, opts)
	next.ProgressMessage = MsgLoadingDemo
	c.publish(next)

	c.demoRun = c.demo.Schedule(id, opts.IncludeAnalytics, c.enqueueEvent)

	log.Info(log.CatSession, "Demo session started",
		"session", id, "generation", next.Generation, "analytics", opts.IncludeAnalytics)
	return nil
}

// begin retires the previous session and builds the first state of a new one.
func (c *Coordinator) begin(cur State, id string, source Source, opts StartOptions) State {
	c.retire(cur, RetiredSuperseded)

	gen := cur.Generation + 1
	c.tokens[id] = gen
	c.liveID = id

	requested := features.Of()
	if opts.IncludeAnalytics {
		requested = requested.With(features.Analytics)
	}

	return State{
		Phase:      PhaseExtractingPrimary,
		SessionID:  id,
		Generation: gen,
		Source:     source,
		Requested:  requested,
		Enabled:    cur.Enabled,
		StartedAt:  c.clock.Now(),
	}
}

func (c *Coordinator) cancelLive() bool {
	cur := c.State()
	if !cur.IsLive() || c.liveID == "" {
		log.Debug(log.CatSession, "Cancel ignored, nothing running", "phase", cur.Phase)
		return false
	}

	next := cur
	next.Phase = PhaseCancelled
	next.Generation = cur.Generation + 1
	next.ProgressMessage = ""
	next.FinishedAt = c.clock.Now()

	c.stopLive(cur)
	c.retire(cur, RetiredCancelled)
	c.publish(next)

	log.Info(log.CatSession, "Session cancelled", "session", cur.SessionID, "generation", next.Generation)
	return true
}

func (c *Coordinator) reset() {
	cur := c.State()
	if cur.IsLive() {
		c.stopLive(cur)
	}
	c.retire(cur, RetiredReset)

	next := State{
		Phase:      PhaseIdle,
		Generation: cur.Generation + 1,
		Enabled:    cur.Enabled,
	}
	c.publish(next)

	log.Info(log.CatSession, "Session reset", "generation", next.Generation)
}

func (c *Coordinator) setFeatures(set features.Set) {
	cur := c.State()
	if cur.Enabled == set {
		return
	}
	next := cur
	next.Enabled = set
	c.publish(next)
	log.Info(log.CatSession, "Enabled features changed", "features", set.String())
}

// stopLive halts whatever produces events for the live session.
func (c *Coordinator) stopLive(cur State) {
	switch cur.Source {
	case SourceEngine:
		if c.binding != nil && c.liveID != "" {
			found := c.binding.CancelExtraction(c.liveID)
			log.Debug(log.CatSession, "Engine cancel requested", "session", c.liveID, "found", found)
		}
	}
	c.release()
}

// release drops the handles of the live session. Pending demo timers are stopped.
func (c *Coordinator) release() {
	if c.demoRun != nil {
		c.demoRun.Stop()
		c.demoRun = nil
	}
	c.liveID = ""
}

// retire forgets the token of the session cur describes.
func (c *Coordinator) retire(cur State, reason RetireReason) {
	if cur.SessionID == "" {
		return
	}
	if _, ok := c.tokens[cur.SessionID]; !ok {
		return
	}
	delete(c.tokens, cur.SessionID)
	c.retired.add(cur.SessionID, cur.Generation, reason)
}

func (c *Coordinator) handleEvent(ev engine.Event) {
	cur := c.State()
	id := ev.Session()

	gen, ok := c.tokens[id]
	if !ok || gen != cur.Generation {
		c.stats.stale.Add(1)
		if entry, found := c.retired.lookup(id); found {
			log.Debug(log.CatSession, "Dropped stale event",
				"session", id, "kind", engine.Kind(ev), "reason", entry.reason, "eventGeneration", entry.generation,
				"generation", cur.Generation)
		} else {
			log.Debug(log.CatSession, "Dropped event for unknown session", "session", id, "kind", engine.Kind(ev))
		}
		return
	}

	next, outcome := Apply(cur, ev, c.clock.Now())
	switch outcome {
	case OutOfPhase:
		c.stats.outOfPhase.Add(1)
		log.Warn(log.CatSession, "Ignored out-of-phase event",
			"session", id, "kind", engine.Kind(ev), "phase", cur.Phase)
		return
	case Duplicate:
		c.stats.duplicates.Add(1)
		log.Debug(log.CatSession, "Ignored duplicate event", "session", id, "kind", engine.Kind(ev))
		return
	}

	c.stats.accepted.Add(1)
	if cur.IsLive() && !next.IsLive() {
		c.release()
		logFinished(next)
	} else if cur.Phase != next.Phase {
		log.Info(log.CatSession, "Phase changed", "session", id, "from", cur.Phase, "to", next.Phase)
	}
	c.publish(next)
}

func logFinished(s State) {
	switch {
	case s.Failure != nil:
		log.Warn(log.CatSession, "Session failed", "session", s.SessionID, "title", s.Failure.Title, "message", s.Failure.Message)
	case s.AnalyticsError != "":
		log.Warn(log.CatSession, "Session finished without analytics", "session", s.SessionID, "error", s.AnalyticsError)
	default:
		log.Info(log.CatSession, "Session finished", "session", s.SessionID, "analytics", s.Analytics != nil)
	}
}

func (c *Coordinator) publish(next State) {
	c.state.Store(&next)
	c.broker.Publish(pubsub.UpdatedEvent, next)
}

// shutdown runs on the loop goroutine when Run exits.
func (c *Coordinator) shutdown() {
	cur := c.State()
	if cur.IsLive() {
		c.stopLive(cur)
		log.Info(log.CatSession, "Stopped live session on shutdown", "session", cur.SessionID)
	}
}
