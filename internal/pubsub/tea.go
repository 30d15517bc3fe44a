package pubsub

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// ListenCmd waits for the next event on ch and hands it to the Bubble Tea
// update loop as a message. It yields nil once ctx is done or ch is closed,
// which ends the listen cycle: a model re-issues the command after every
// event it handles.
func ListenCmd[T any](ctx context.Context, ch <-chan Event[T]) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			return ev
		}
	}
}

// Listener is a broker subscription owned by a Bubble Tea model.
type Listener[T any] struct {
	ctx context.Context
	ch  <-chan Event[T]
}

// Listen subscribes to broker until ctx is done.
func Listen[T any](ctx context.Context, broker *Broker[T]) *Listener[T] {
	return &Listener[T]{ctx: ctx, ch: broker.Subscribe(ctx)}
}

// Next returns a command delivering the listener's next event.
func (l *Listener[T]) Next() tea.Cmd {
	return ListenCmd(l.ctx, l.ch)
}
