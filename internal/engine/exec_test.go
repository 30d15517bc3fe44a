package engine

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptBinding runs script under sh. The engine arguments are appended, so
// inside the script $1 is --input, $2 the archive path and $3 --analytics.
func scriptBinding(t *testing.T, script string, cfg ExecConfig, opts ...ExecOption) *ExecBinding {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	cfg.Command = "sh"
	cfg.Args = []string{"-c", script, "engine"}
	b := NewExecBinding(cfg, opts...)
	t.Cleanup(b.Close)
	return b
}

func nextEvent(t *testing.T, b *ExecBinding) Event {
	t.Helper()
	select {
	case ev := <-b.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for engine event")
		return nil
	}
}

func requireNoEvent(t *testing.T, b *ExecBinding, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-b.Events():
		t.Fatalf("unexpected event %#v", ev)
	case <-time.After(wait):
	}
}

// tracked reports whether b still holds the run for id.
func tracked(b *ExecBinding, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.runs[id]
	return ok
}

func TestExecBinding_PrimaryOnly(t *testing.T) {
	script := `
echo '{"type":"progress","progress":{"step":"messages","message":"Reading messages..."}}'
echo '{"type":"complete","result":{"messageCount":42,"hoursValues":[]}}'
`
	b := scriptBinding(t, script, ExecConfig{}, WithIDGenerator(func() string { return "fixed-id" }))

	id, err := b.StartExtraction(context.Background(), "/tmp/package.zip", false)
	require.NoError(t, err)
	require.Equal(t, "fixed-id", id)

	ev := nextEvent(t, b)
	require.Equal(t, ProgressEvent{SessionID: id, Step: StepPrimary, Message: "Reading messages..."}, ev)

	ev = nextEvent(t, b)
	c, ok := ev.(CompleteEvent)
	require.True(t, ok, "got %#v", ev)
	require.Equal(t, id, c.SessionID)
	require.Equal(t, 42, c.Result.MessageCount)

	requireNoEvent(t, b, 200*time.Millisecond)
	require.Eventually(t, func() bool { return !tracked(b, id) }, 5*time.Second, 10*time.Millisecond,
		"finished run should be released")
	require.False(t, b.CancelExtraction(id))
}

func TestExecBinding_ReleasesFinishedRuns(t *testing.T) {
	script := `
i=0
while [ $i -lt 500 ]; do echo "debug line $i" >&2; i=$((i+1)); done
echo '{"type":"complete","result":{}}'
`
	b := scriptBinding(t, script, ExecConfig{})

	for i := 0; i < 5; i++ {
		_, err := b.StartExtraction(context.Background(), "/tmp/p.zip", false)
		require.NoError(t, err)
		_, ok := nextEvent(t, b).(CompleteEvent)
		require.True(t, ok)
	}

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.runs) == 0
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, b.Running())
}

func TestExecBinding_PassesInputAndAnalyticsFlags(t *testing.T) {
	script := `
printf '{"type":"progress","progress":{"step":"messages","message":"%s %s %s"}}\n' "$1" "$2" "$3"
echo '{"type":"complete","result":{}}'
echo '{"type":"analyticsComplete","result":{"allEvents":7}}'
`
	b := scriptBinding(t, script, ExecConfig{})

	id, err := b.StartExtraction(context.Background(), "/data/package.zip", true)
	require.NoError(t, err)

	ev := nextEvent(t, b)
	require.Equal(t, ProgressEvent{SessionID: id, Step: StepPrimary, Message: "--input /data/package.zip --analytics"}, ev)

	_, ok := nextEvent(t, b).(CompleteEvent)
	require.True(t, ok)

	a, ok := nextEvent(t, b).(AnalyticsCompleteEvent)
	require.True(t, ok)
	require.Equal(t, 7, a.Result.AllEvents)

	requireNoEvent(t, b, 200*time.Millisecond)
}

func TestExecBinding_SkipsUnparseableLines(t *testing.T) {
	script := `
echo 'warming up'
echo '{"type":"heartbeat"}'
echo '{"type":"complete","result":{"channelCount":2}}'
`
	b := scriptBinding(t, script, ExecConfig{})

	_, err := b.StartExtraction(context.Background(), "/tmp/p.zip", false)
	require.NoError(t, err)

	c, ok := nextEvent(t, b).(CompleteEvent)
	require.True(t, ok)
	require.Equal(t, 2, c.Result.ChannelCount)
}

func TestExecBinding_CrashReportsPrimaryError(t *testing.T) {
	script := `
echo 'zip: unexpected EOF' >&2
exit 3
`
	b := scriptBinding(t, script, ExecConfig{})

	id, err := b.StartExtraction(context.Background(), "/tmp/p.zip", true)
	require.NoError(t, err)

	e, ok := nextEvent(t, b).(ErrorEvent)
	require.True(t, ok)
	require.Equal(t, id, e.SessionID)
	require.Equal(t, StepPrimary, e.Step)
	require.Equal(t, "Extraction failed", e.Title)
	require.Contains(t, e.Message, "zip: unexpected EOF")
	require.Eventually(t, func() bool { return !tracked(b, id) }, 5*time.Second, 10*time.Millisecond)
}

func TestExecBinding_FailureKeepsStderrTail(t *testing.T) {
	script := `
i=1
while [ $i -le 100 ]; do echo "line $i" >&2; i=$((i+1)); done
exit 3
`
	b := scriptBinding(t, script, ExecConfig{})

	_, err := b.StartExtraction(context.Background(), "/tmp/p.zip", false)
	require.NoError(t, err)

	e, ok := nextEvent(t, b).(ErrorEvent)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(e.Message, "line 81\n"), "message: %q", e.Message)
	require.Contains(t, e.Message, "line 100 (exit:")
	require.NotContains(t, e.Message, "line 80\n")
	require.Equal(t, maxStderrLines-1, strings.Count(e.Message, "\n"))
}

func TestExecBinding_ExitWithoutResult(t *testing.T) {
	b := scriptBinding(t, `exit 0`, ExecConfig{})

	_, err := b.StartExtraction(context.Background(), "/tmp/p.zip", false)
	require.NoError(t, err)

	e, ok := nextEvent(t, b).(ErrorEvent)
	require.True(t, ok)
	require.Equal(t, StepPrimary, e.Step)
	require.Contains(t, e.Message, "before reporting a result")
}

func TestExecBinding_ExitAfterPrimaryReportsAnalyticsError(t *testing.T) {
	script := `echo '{"type":"complete","result":{}}'`
	b := scriptBinding(t, script, ExecConfig{})

	_, err := b.StartExtraction(context.Background(), "/tmp/p.zip", true)
	require.NoError(t, err)

	_, ok := nextEvent(t, b).(CompleteEvent)
	require.True(t, ok)

	e, ok := nextEvent(t, b).(ErrorEvent)
	require.True(t, ok)
	require.Equal(t, StepAnalytics, e.Step)
}

func TestExecBinding_EngineReportedErrorIsNotDuplicated(t *testing.T) {
	script := `
echo '{"type":"error","error":{"step":"scaffolding","title":"Failed to open file","message":"no such file"}}'
exit 1
`
	b := scriptBinding(t, script, ExecConfig{})

	_, err := b.StartExtraction(context.Background(), "/tmp/missing.zip", false)
	require.NoError(t, err)

	e, ok := nextEvent(t, b).(ErrorEvent)
	require.True(t, ok)
	require.Equal(t, StepScaffolding, e.Step)
	require.Equal(t, "Failed to open file", e.Title)

	requireNoEvent(t, b, 300*time.Millisecond)
}

func TestExecBinding_Cancel(t *testing.T) {
	script := `
echo '{"type":"progress","progress":{"step":"messages","message":"Reading messages..."}}'
exec sleep 30
`
	b := scriptBinding(t, script, ExecConfig{})

	id, err := b.StartExtraction(context.Background(), "/tmp/p.zip", false)
	require.NoError(t, err)

	_, ok := nextEvent(t, b).(ProgressEvent)
	require.True(t, ok)
	require.Equal(t, 1, b.Running())

	require.True(t, b.CancelExtraction(id))
	require.False(t, b.CancelExtraction(id), "second cancel is a no-op")
	require.Equal(t, 0, b.Running())
	require.Eventually(t, func() bool { return !tracked(b, id) }, 5*time.Second, 10*time.Millisecond)

	requireNoEvent(t, b, 300*time.Millisecond)
}

func TestExecBinding_CancelUnknownSession(t *testing.T) {
	b := NewExecBinding(ExecConfig{Command: "true"})
	defer b.Close()

	require.False(t, b.CancelExtraction("nope"))
}

func TestExecBinding_Timeout(t *testing.T) {
	b := scriptBinding(t, `exec sleep 30`, ExecConfig{Timeout: 200 * time.Millisecond})

	_, err := b.StartExtraction(context.Background(), "/tmp/p.zip", false)
	require.NoError(t, err)

	e, ok := nextEvent(t, b).(ErrorEvent)
	require.True(t, ok)
	require.Equal(t, StepPrimary, e.Step)
	require.Contains(t, e.Message, ErrTimeout.Error())
}

func TestExecBinding_StartErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewExecBinding(ExecConfig{}).StartExtraction(ctx, "/tmp/p.zip", false)
	require.ErrorIs(t, err, ErrNoCommand)

	b := NewExecBinding(ExecConfig{Command: "true"})
	_, err = b.StartExtraction(ctx, "  ", false)
	require.ErrorIs(t, err, ErrEmptyPath)

	b.Close()
	_, err = b.StartExtraction(ctx, "/tmp/p.zip", false)
	require.ErrorIs(t, err, ErrBindingClosed)

	missing := NewExecBinding(ExecConfig{Command: "/definitely/not/a/dpkg-engine"})
	defer missing.Close()
	_, err = missing.StartExtraction(ctx, "/tmp/p.zip", false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "starting engine")
}

func TestExecBinding_CloseClosesEvents(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	b := NewExecBinding(ExecConfig{Command: "sh", Args: []string{"-c", "exec sleep 30", "engine"}})

	_, err := b.StartExtraction(context.Background(), "/tmp/p.zip", false)
	require.NoError(t, err)

	b.Close()
	_, open := <-b.Events()
	require.False(t, open)
	require.Equal(t, 0, b.Running())
}

func TestRunStatus(t *testing.T) {
	require.False(t, RunRunning.IsTerminal())
	require.True(t, RunCancelled.IsTerminal())
	require.Equal(t, "failed", RunFailed.String())
}
