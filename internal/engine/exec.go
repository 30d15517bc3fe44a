package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
)

// RunStatus represents the lifecycle of one engine process.
type RunStatus int

const (
	// RunRunning indicates the process is running.
	RunRunning RunStatus = iota
	// RunCompleted indicates the process exited successfully.
	RunCompleted
	// RunFailed indicates the process exited with an error or timed out.
	RunFailed
	// RunCancelled indicates the process was cancelled.
	RunCancelled
)

func (s RunStatus) String() string {
	switch s {
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	case RunCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the run can no longer change.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// maxStderrLines bounds the stderr tail kept per run for failure messages.
const maxStderrLines = 20

// ExecConfig configures an ExecBinding.
type ExecConfig struct {
	// Command is the engine executable.
	Command string
	// Args are passed before --input <path> [--analytics].
	Args []string
	// Timeout bounds each extraction. Zero disables the limit.
	Timeout time.Duration
}

// ExecOption is a functional option for configuring ExecBinding.
type ExecOption func(*ExecBinding)

// WithIDGenerator overrides how session ids are generated.
func WithIDGenerator(fn func() string) ExecOption {
	return func(b *ExecBinding) {
		b.newID = fn
	}
}

// WithEventBuffer sets the size of the shared events channel.
func WithEventBuffer(size int) ExecOption {
	return func(b *ExecBinding) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// ExecBinding is a Binding that runs the engine as a child process per
// extraction and reads JSON line events from its stdout.
type ExecBinding struct {
	cfg        ExecConfig
	newID      func() string
	bufferSize int

	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup
}

// run is one engine process. It is tracked in ExecBinding.runs until its
// process has exited. Fields after mu are guarded by it.
type run struct {
	id            string
	cmd           *exec.Cmd
	ctx           context.Context
	cancel        context.CancelFunc
	wantAnalytics bool

	mu          sync.Mutex
	status      RunStatus
	stderrLines []string // last maxStderrLines lines
	sawComplete bool
	finished    bool // a terminal event for the whole session was seen
}

// NewExecBinding creates a binding for the configured engine executable.
func NewExecBinding(cfg ExecConfig, opts ...ExecOption) *ExecBinding {
	b := &ExecBinding{
		cfg:        cfg,
		newID:      uuid.NewString,
		bufferSize: 256,
		done:       make(chan struct{}),
		runs:       make(map[string]*run),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.events = make(chan Event, b.bufferSize)
	return b
}

var _ Binding = (*ExecBinding)(nil)

// Events returns the shared event stream. It is closed by Close.
func (b *ExecBinding) Events() <-chan Event {
	return b.events
}

// StartExtraction launches the engine for localPath. ctx bounds the lifetime
// of the process, not just the call.
func (b *ExecBinding) StartExtraction(ctx context.Context, localPath string, wantAnalytics bool) (string, error) {
	if b.cfg.Command == "" {
		return "", ErrNoCommand
	}
	if strings.TrimSpace(localPath) == "" {
		return "", ErrEmptyPath
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", ErrBindingClosed
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if b.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	args := make([]string, 0, len(b.cfg.Args)+3)
	args = append(args, b.cfg.Args...)
	args = append(args, "--input", localPath)
	if wantAnalytics {
		args = append(args, "--analytics")
	}

	cmd := exec.CommandContext(runCtx, b.cfg.Command, args...) //nolint:gosec // G204: command comes from user config
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return "", fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return "", fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		log.ErrorErr(log.CatEngine, "Failed to start engine", err, "command", b.cfg.Command)
		return "", fmt.Errorf("starting engine: %w", err)
	}

	r := &run{
		id:            b.newID(),
		cmd:           cmd,
		ctx:           runCtx,
		cancel:        cancel,
		wantAnalytics: wantAnalytics,
		status:        RunRunning,
	}
	b.runs[r.id] = r

	log.Info(log.CatEngine, "Engine started",
		"session", r.id, "pid", cmd.Process.Pid, "path", localPath, "analytics", wantAnalytics)

	b.wg.Add(1)
	go b.supervise(r, stdout, stderr)

	return r.id, nil
}

// CancelExtraction stops the engine process for sessionID. It sets the status
// to cancelled before killing the process so supervise does not report the
// resulting exit as a failure.
func (b *ExecBinding) CancelExtraction(sessionID string) bool {
	b.mu.Lock()
	r, ok := b.runs[sessionID]
	b.mu.Unlock()
	if !ok {
		log.Debug(log.CatEngine, "Cancel for unknown session", "session", sessionID)
		return false
	}

	r.mu.Lock()
	if r.status.IsTerminal() {
		r.mu.Unlock()
		return false
	}
	r.status = RunCancelled
	r.mu.Unlock()

	r.cancel()
	log.Info(log.CatEngine, "Engine cancelled", "session", sessionID)
	return true
}

// Running returns the number of engine processes still alive.
func (b *ExecBinding) Running() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.runs {
		r.mu.Lock()
		if !r.status.IsTerminal() {
			n++
		}
		r.mu.Unlock()
	}
	return n
}

// Close cancels every running extraction, waits for the processes to exit,
// and closes the events channel.
func (b *ExecBinding) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	ids := make([]string, 0, len(b.runs))
	for id := range b.runs {
		ids = append(ids, id)
	}
	close(b.done)
	b.mu.Unlock()

	for _, id := range ids {
		b.CancelExtraction(id)
	}
	b.wg.Wait()
	close(b.events)
}

// supervise drains the process output, then waits for it to exit and reports
// an error event when the engine died without finishing the session.
func (b *ExecBinding) supervise(r *run, stdout, stderr io.Reader) {
	defer b.wg.Done()
	defer b.forget(r.id)
	defer r.cancel()

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		b.readStdout(r, stdout)
	}()
	go func() {
		defer readers.Done()
		readStderr(r, stderr)
	}()
	readers.Wait()

	waitErr := r.cmd.Wait()

	r.mu.Lock()
	if r.status == RunCancelled {
		r.mu.Unlock()
		log.Debug(log.CatEngine, "Engine exited after cancel", "session", r.id)
		return
	}

	var failure error
	switch {
	case errors.Is(r.ctx.Err(), context.DeadlineExceeded):
		failure = ErrTimeout
	case waitErr != nil && len(r.stderrLines) > 0:
		failure = fmt.Errorf("%s (exit: %w)", strings.Join(r.stderrLines, "\n"), waitErr)
	case waitErr != nil:
		failure = fmt.Errorf("engine exited: %w", waitErr)
	case !r.finished:
		failure = errors.New("engine exited before reporting a result")
	}

	if failure == nil {
		r.status = RunCompleted
		r.mu.Unlock()
		log.Info(log.CatEngine, "Engine finished", "session", r.id)
		return
	}
	r.status = RunFailed
	finished := r.finished
	step := StepPrimary
	if r.sawComplete {
		step = StepAnalytics
	}
	r.mu.Unlock()

	log.ErrorErr(log.CatEngine, "Engine failed", failure, "session", r.id)
	if finished {
		return
	}
	b.emit(ErrorEvent{
		SessionID: r.id,
		Step:      step,
		Title:     "Extraction failed",
		Message:   failure.Error(),
	})
}

func (b *ExecBinding) readStdout(r *run, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	// Results can be large: 64KB initial, 16MB max per line
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		ev, err := DecodeLine(line, r.id)
		if err != nil {
			log.Debug(log.CatEngine, "parse error", "session", r.id, "error", err, "line", string(line))
			continue
		}

		r.mu.Lock()
		cancelled := r.status == RunCancelled
		r.track(ev)
		r.mu.Unlock()
		if cancelled {
			continue
		}
		b.emit(ev)
	}

	if err := scanner.Err(); err != nil {
		log.Debug(log.CatEngine, "stdout scanner error", "session", r.id, "error", err)
	}
}

// track records whether ev finishes the session. Caller holds r.mu.
func (r *run) track(ev Event) {
	switch e := ev.(type) {
	case CompleteEvent:
		r.sawComplete = true
		if !r.wantAnalytics {
			r.finished = true
		}
	case AnalyticsCompleteEvent:
		r.finished = true
	case ErrorEvent:
		if e.Step.AbortsSession() || r.sawComplete {
			r.finished = true
		}
	}
}

// forget stops tracking a run whose process has exited.
func (b *ExecBinding) forget(id string) {
	b.mu.Lock()
	delete(b.runs, id)
	b.mu.Unlock()
}

func readStderr(r *run, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		log.Debug(log.CatEngine, "STDERR", "session", r.id, "line", line)
		r.mu.Lock()
		if len(r.stderrLines) == maxStderrLines {
			copy(r.stderrLines, r.stderrLines[1:])
			r.stderrLines = r.stderrLines[:maxStderrLines-1]
		}
		r.stderrLines = append(r.stderrLines, line)
		r.mu.Unlock()
	}
}

func (b *ExecBinding) emit(ev Event) {
	select {
	case b.events <- ev:
	case <-b.done:
		log.Debug(log.CatEngine, "Binding closed, dropping event", "session", ev.Session(), "kind", Kind(ev))
	}
}
