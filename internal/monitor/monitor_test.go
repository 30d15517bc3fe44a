package monitor

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/require"

	"github.com/TheOriginalAyaka/discord-package-app/internal/demo"
	"github.com/TheOriginalAyaka/discord-package-app/internal/engine"
	"github.com/TheOriginalAyaka/discord-package-app/internal/engine/mock"
	"github.com/TheOriginalAyaka/discord-package-app/internal/pubsub"
	"github.com/TheOriginalAyaka/discord-package-app/internal/session"
)

var epoch = time.Date(2026, 1, 17, 12, 0, 0, 0, time.UTC)

func runCoordinator(t *testing.T) (*session.Coordinator, *mock.Binding) {
	t.Helper()
	binding := mock.NewBinding()
	c := session.New(session.WithBinding(binding), session.WithClock(demo.NewManualClock(epoch)))

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	require.NoError(t, c.WaitForReady(ctx))
	t.Cleanup(func() {
		cancel()
		c.Stop()
	})
	return c, binding
}

func press(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func snapshot(s session.State) pubsub.Event[session.State] {
	return pubsub.Event[session.State]{Type: pubsub.UpdatedEvent, Payload: s, Timestamp: epoch}
}

func TestNew_TakesCurrentState(t *testing.T) {
	c, _ := runCoordinator(t)
	require.NoError(t, c.StartDemo())

	m := New(context.Background(), c)
	require.Equal(t, session.PhaseExtractingPrimary, m.State().Phase)
	require.NotNil(t, m.Init())
}

func TestUpdate_Keys(t *testing.T) {
	c, _ := runCoordinator(t)
	m := New(context.Background(), c)

	m, _ = update(t, m, press('c'))
	require.Equal(t, "Nothing to cancel", m.Notice())

	m, _ = update(t, m, press('d'))
	require.Empty(t, m.Notice())
	require.Equal(t, session.SourceDemo, c.State().Source)
	require.True(t, c.State().IsLive())

	m, _ = update(t, m, press('d'))
	require.Equal(t, session.ErrSessionLive.Error(), m.Notice())

	m, _ = update(t, m, press('c'))
	require.Empty(t, m.Notice())
	require.Equal(t, session.PhaseCancelled, c.State().Phase)

	_, _ = update(t, m, press('r'))
	require.Equal(t, session.PhaseIdle, c.State().Phase)
	require.Empty(t, c.State().SessionID)
}

func TestUpdate_QuitKeys(t *testing.T) {
	c, _ := runCoordinator(t)

	for _, msg := range []tea.KeyMsg{press('q'), {Type: tea.KeyCtrlC}} {
		m := New(context.Background(), c)
		_, cmd := update(t, m, msg)
		require.NotNil(t, cmd)
		require.IsType(t, tea.QuitMsg{}, cmd())
	}
}

func TestUpdate_ExitWhenDone(t *testing.T) {
	c, _ := runCoordinator(t)
	m := New(context.Background(), c, WithExitWhenDone())

	live := session.State{Phase: session.PhaseExtractingPrimary, SessionID: "s1", Generation: 1}
	m, cmd := update(t, m, snapshot(live))
	require.NotNil(t, cmd)

	done := live
	done.Phase = session.PhaseIdle
	done.Primary = &engine.PrimaryResult{MessageCount: 1}
	_, cmd = update(t, m, snapshot(done))
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestUpdate_IdleSnapshotDoesNotQuitBeforeSession(t *testing.T) {
	c, _ := runCoordinator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := New(ctx, c, WithExitWhenDone())

	_, cmd := update(t, m, snapshot(session.State{}))
	require.NotNil(t, cmd)
	require.Nil(t, cmd(), "listen command returns nil once ctx is done instead of quitting")
}

func TestView(t *testing.T) {
	tests := []struct {
		name  string
		state session.State
		want  []string
	}{
		{
			name:  "idle",
			state: session.State{},
			want:  []string{"Idle", "c cancel"},
		},
		{
			name: "loading",
			state: session.State{
				Phase: session.PhaseExtractingPrimary, SessionID: "abc", Generation: 2,
				Source: session.SourceEngine, ArchivePath: "/tmp/package.zip",
				ProgressMessage: "Loading user data...", StartedAt: epoch,
			},
			want: []string{"Loading user data...", "abc (engine, gen 2)", "/tmp/package.zip", "Elapsed", "5s"},
		},
		{
			name: "done with analytics error",
			state: session.State{
				SessionID: "abc", Generation: 1, Source: session.SourceDemo,
				Primary:        &engine.PrimaryResult{MessageCount: 42, ChannelCount: 3, Guilds: []engine.Guild{{ID: "1", Name: "g"}}, User: &engine.User{Username: "ayaka"}},
				AnalyticsError: "events file is corrupt",
			},
			want: []string{"Done", "42 messages, 3 channels, 1 servers", "ayaka", "Analytics unavailable: events file is corrupt"},
		},
		{
			name: "analytics",
			state: session.State{
				SessionID: "abc", Primary: &engine.PrimaryResult{}, Analytics: &engine.AnalyticsResult{AllEvents: 1234},
			},
			want: []string{"1234 events"},
		},
		{
			name: "failed",
			state: session.State{
				Failure: &session.Failure{Kind: session.FailureStartRejected, Title: "Could not start extraction", Message: "no such file"},
			},
			want: []string{"Failed", "Could not start extraction: no such file"},
		},
		{
			name:  "cancelled",
			state: session.State{Phase: session.PhaseCancelled, SessionID: "abc"},
			want:  []string{"Cancelled"},
		},
	}

	c, _ := runCoordinator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(context.Background(), c, WithNow(func() time.Time { return epoch.Add(5 * time.Second) }))
			m.state = tt.state
			view := m.View()
			for _, w := range tt.want {
				require.Contains(t, view, w)
			}
		})
	}
}

func TestView_TruncatesToWidth(t *testing.T) {
	c, _ := runCoordinator(t)
	m := New(context.Background(), c)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 30, Height: 10})
	m.state = session.State{Failure: &session.Failure{Title: "Could not start extraction", Message: strings.Repeat("x", 200)}}

	for _, line := range strings.Split(m.View(), "\n") {
		require.LessOrEqual(t, lipgloss.Width(line), 30, "line should be clipped: %q", line)
	}
}

func TestUpdate_LogTail(t *testing.T) {
	c, _ := runCoordinator(t)
	m := New(context.Background(), c)

	for i := 0; i < logTailSize+2; i++ {
		m.logTail = append(m.logTail, "line")
	}
	require.Len(t, m.logTail, logTailSize+2)

	b := pubsub.NewBroker[string]()
	defer b.Close()
	m.logs = pubsub.Listen(context.Background(), b)
	m, cmd := update(t, m, pubsub.Event[string]{Payload: "2026-01-17T12:00:00 [INFO] [session] Session started\n"})
	require.NotNil(t, cmd)
	require.Len(t, m.logTail, logTailSize)
	require.Equal(t, "2026-01-17T12:00:00 [INFO] [session] Session started", m.logTail[logTailSize-1])
	require.Contains(t, m.View(), "Session started")
}

func TestProgram_DemoCancelQuit(t *testing.T) {
	c, _ := runCoordinator(t)
	m := New(context.Background(), c)

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))

	tm.Send(press('d'))
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return strings.Contains(string(bts), session.MsgLoadingDemo)
	}, teatest.WithDuration(2*time.Second))

	tm.Send(press('c'))
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return strings.Contains(string(bts), "Cancelled")
	}, teatest.WithDuration(2*time.Second))

	tm.Send(press('q'))
	final, ok := tm.FinalModel(t, teatest.WithFinalTimeout(2*time.Second)).(Model)
	require.True(t, ok)
	require.Equal(t, session.PhaseCancelled, final.State().Phase)
}

func TestProgram_ExitsWhenSessionFinishes(t *testing.T) {
	c, binding := runCoordinator(t)
	require.NoError(t, c.Start("/tmp/package.zip", session.StartOptions{}))
	id := binding.LastSessionID()

	tm := teatest.NewTestModel(t, New(context.Background(), c, WithExitWhenDone()), teatest.WithInitialTermSize(80, 24))
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return strings.Contains(string(bts), session.MsgLoadingUserData)
	}, teatest.WithDuration(2*time.Second))

	binding.Complete(id, engine.PrimaryResult{MessageCount: 7})

	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))
	final, ok := tm.FinalModel(t).(Model)
	require.True(t, ok)
	require.NotNil(t, final.State().Primary)
	require.Equal(t, 7, final.State().Primary.MessageCount)
}

func TestUpdate_LogTailStripsEscapes(t *testing.T) {
	c, _ := runCoordinator(t)
	m := New(context.Background(), c)

	b := pubsub.NewBroker[string]()
	defer b.Close()
	m.logs = pubsub.Listen(context.Background(), b)
	m, _ = update(t, m, pubsub.Event[string]{Payload: "\x1b[31mengine failed\x1b[0m\n"})
	require.Equal(t, []string{"engine failed"}, m.logTail)
}
