package pubsub

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Phase string
	Gen   int
}

func deliver(t *testing.T, cmd tea.Cmd) Event[snapshot] {
	t.Helper()
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		ev, ok := msg.(Event[snapshot])
		require.True(t, ok, "got %#v", msg)
		return ev
	case <-time.After(time.Second):
		t.Fatal("listen command did not deliver")
		return Event[snapshot]{}
	}
}

func TestListenCmd_DeliversRetainedSnapshot(t *testing.T) {
	broker := NewRetainingBroker[snapshot](4)
	defer broker.Close()
	broker.Publish(UpdatedEvent, snapshot{Phase: "extracting", Gen: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ev := deliver(t, ListenCmd(ctx, broker.Subscribe(ctx)))
	require.Equal(t, SnapshotEvent, ev.Type, "replayed value is a snapshot for the new subscriber")
	require.Equal(t, snapshot{Phase: "extracting", Gen: 1}, ev.Payload)
}

func TestListenCmd_EndsOnCancelOrClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Nil(t, ListenCmd(ctx, make(chan Event[snapshot]))())

	closed := make(chan Event[snapshot])
	close(closed)
	require.Nil(t, ListenCmd(context.Background(), closed)())
}

func TestListener_NextFollowsUpdatesInOrder(t *testing.T) {
	broker := NewBroker[snapshot]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := Listen(ctx, broker)

	broker.Publish(SnapshotEvent, snapshot{Phase: "idle"})
	broker.Publish(UpdatedEvent, snapshot{Phase: "extracting", Gen: 1})
	broker.Publish(UpdatedEvent, snapshot{Phase: "idle", Gen: 1})

	var phases []string
	for i := 0; i < 3; i++ {
		phases = append(phases, deliver(t, l.Next()).Payload.Phase)
	}
	require.Equal(t, []string{"idle", "extracting", "idle"}, phases)
}
