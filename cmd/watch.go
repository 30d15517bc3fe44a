package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TheOriginalAyaka/discord-package-app/internal/config"
	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
	"github.com/TheOriginalAyaka/discord-package-app/internal/monitor"
	"github.com/TheOriginalAyaka/discord-package-app/internal/session"
	"github.com/TheOriginalAyaka/discord-package-app/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Extract every archive dropped into an inbox directory",
	Long: `Watch an inbox directory and start an extraction for each .zip archive that
appears in it. Archives arriving while a session runs are skipped.

The directory defaults to inbox.dir from the config.

Example:
  dpkg watch ~/Downloads/discord
  dpkg watch --plain`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var watchPlain bool

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "print progress lines instead of the interactive monitor")
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := cfg.Inbox.Dir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no inbox directory (pass one or set inbox.dir in %s)", configFilePath())
	}
	if cfg.Engine.Command == "" {
		return fmt.Errorf("no extraction engine configured (set engine.command in %s)", configFilePath())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	followFeatures(rt.coord)
	return watchInbox(ctx, rt, config.ExpandHome(dir), cfg.Inbox.Debounce, watchPlain, cmd.OutOrStdout())
}

// watchInbox starts a session for each settled archive until ctx is done or
// the monitor quits.
func watchInbox(ctx context.Context, rt *runtime, dir string, debounce time.Duration, plain bool, out io.Writer) error {
	w, err := watcher.New(watcher.Config{Dir: dir, DebounceDur: debounce})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	arrivals, err := w.Start()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := func(path string) error {
		// Features are read per archive so config edits picked up by
		// followFeatures apply to the next arrival.
		opts := session.OptionsFor(rt.coord.State().Enabled)
		return rt.coord.Start(path, opts)
	}

	if plain || !isTerminal(os.Stdout) {
		sub := rt.coord.Subscribe(ctx)
		go watcher.Dispatch(ctx, arrivals, start)
		fmt.Fprintf(out, "watching %s\n", dir)
		session.Follow(ctx, sub, func(ch session.Change) {
			printChange(out, ch)
		})
		return nil
	}

	go watcher.Dispatch(ctx, arrivals, start)
	var opts []monitor.Option
	if l := log.NewListener(ctx); l != nil {
		opts = append(opts, monitor.WithLogListener(l))
	}
	return monitor.Run(ctx, rt.coord, opts...)
}

// followFeatures pushes the features section of the config file to the
// coordinator whenever the file changes on disk.
func followFeatures(coord *session.Coordinator) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		var next config.Config
		if err := viper.Unmarshal(&next); err != nil {
			log.ErrorErr(log.CatConfig, "Failed to reload config", err, "path", e.Name)
			return
		}
		if err := config.ValidateFeatures(next.Features); err != nil {
			log.Warn(log.CatConfig, "Ignoring invalid features", "path", e.Name, "error", err)
			return
		}
		coord.SetEnabledFeatures(next.FeatureSet())
	})
	viper.WatchConfig()
}
