package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
	"github.com/TheOriginalAyaka/discord-package-app/internal/monitor"
	"github.com/TheOriginalAyaka/discord-package-app/internal/pubsub"
	"github.com/TheOriginalAyaka/discord-package-app/internal/session"
)

var errExtractionFailed = errors.New("extraction failed")

// sessionFlags are shared by the commands that run a single session.
type sessionFlags struct {
	plain  bool
	asJSON bool
}

// runOnce starts a session with start and follows it until it finishes. In
// plain mode progress is printed as lines to out, otherwise the monitor
// program takes over the terminal.
func runOnce(ctx context.Context, rt *runtime, out io.Writer, flags sessionFlags, start func() error) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.plain || flags.asJSON || !isTerminal(os.Stdout) {
		// Subscribe before starting so the first snapshot is not missed.
		sub := rt.coord.Subscribe(ctx)
		if err := start(); err != nil {
			return err
		}
		progress := out
		if flags.asJSON {
			progress = io.Discard
		}
		followPlain(ctx, sub, progress)
	} else {
		if err := start(); err != nil {
			return err
		}
		opts := []monitor.Option{monitor.WithExitWhenDone()}
		if l := log.NewListener(ctx); l != nil {
			opts = append(opts, monitor.WithLogListener(l))
		}
		if err := monitor.Run(ctx, rt.coord, opts...); err != nil {
			return fmt.Errorf("running monitor: %w", err)
		}
	}

	final := rt.coord.State()
	if flags.asJSON {
		if err := writeResults(out, final); err != nil {
			return err
		}
	} else {
		printSummary(out, final)
	}
	return outcome(final)
}

// followPlain prints one line per change until the session it observes
// finishes, a start is rejected, or ctx is done.
func followPlain(ctx context.Context, sub <-chan pubsub.Event[session.State], out io.Writer) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session.Follow(ctx, sub, func(ch session.Change) {
		printChange(out, ch)
		if ch.Kind == session.ChangeFinished || ch.Kind == session.ChangeRejected {
			cancel()
		}
	})
}

func printChange(out io.Writer, ch session.Change) {
	s := ch.State
	switch ch.Kind {
	case session.ChangeStarted:
		fmt.Fprintf(out, "started %s (%s, %s)\n", ch.SessionID, s.Source, s.Requested)
		if s.ArchivePath != "" {
			fmt.Fprintf(out, "  %s\n", s.ArchivePath)
		}
		if s.ProgressMessage != "" {
			fmt.Fprintf(out, "  %s\n", s.ProgressMessage)
		}
	case session.ChangePhase:
		fmt.Fprintf(out, "  phase %s\n", s.Phase)
	case session.ChangeProgress:
		fmt.Fprintf(out, "  %s\n", s.ProgressMessage)
	case session.ChangeFinished:
		fmt.Fprintf(out, "finished %s: %s\n", ch.SessionID, ch.Result)
	case session.ChangeRejected:
		fmt.Fprintf(out, "rejected: %s\n", s.Failure.Text())
	}
}

func printSummary(out io.Writer, s session.State) {
	if p := s.Primary; p != nil {
		fmt.Fprintf(out, "Overview: %d messages in %d channels, %d DMs, %d servers\n",
			p.MessageCount, p.ChannelCount, p.DMChannelCount, len(p.Guilds))
		if p.User != nil {
			fmt.Fprintf(out, "Account:  %s\n", p.User.Username)
		}
	}
	if a := s.Analytics; a != nil {
		fmt.Fprintf(out, "Analytics: %d events\n", a.AllEvents)
	}
	if f := s.AnalyticsFailure(); f != nil {
		fmt.Fprintf(out, "%s\n", f.Text())
	}
	if f := s.Failure; f != nil {
		fmt.Fprintf(out, "Error: %s\n", f.Text())
	}
	if s.Phase == session.PhaseCancelled {
		fmt.Fprintln(out, "Cancelled")
	}
}

// results is the JSON document printed by --json.
type results struct {
	SessionID      string `json:"sessionId,omitempty"`
	Source         string `json:"source,omitempty"`
	Phase          string `json:"phase"`
	Primary        any    `json:"primary,omitempty"`
	Analytics      any    `json:"analytics,omitempty"`
	AnalyticsError string `json:"analyticsError,omitempty"`
	Error          string `json:"error,omitempty"`
}

func writeResults(out io.Writer, s session.State) error {
	r := results{
		SessionID:      s.SessionID,
		Source:         string(s.Source),
		Phase:          s.Phase.String(),
		AnalyticsError: s.AnalyticsError,
	}
	if s.Primary != nil {
		r.Primary = s.Primary
	}
	if s.Analytics != nil {
		r.Analytics = s.Analytics
	}
	if s.Failure != nil {
		r.Error = s.Failure.Text()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	return nil
}

// outcome maps the final state to the command's error. Analytics failures
// and cancellation are not errors.
func outcome(s session.State) error {
	if s.Failure != nil {
		return fmt.Errorf("%w: %s", errExtractionFailed, s.Failure.Text())
	}
	return nil
}

// isTerminal reports whether f is attached to a terminal. Without one the
// monitor cannot run and plain output is used instead.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: fd fits in int
}
