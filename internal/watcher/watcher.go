// Package watcher provides inbox directory watching with debouncing for
// dropped data package archives.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
)

// Watcher monitors an inbox directory and reports archives that have
// settled after being created or written.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dir       string
	debounce  time.Duration
	arrivals  chan string
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	Dir         string
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:         dir,
		DebounceDur: 1 * time.Second,
	}
}

// New creates a new inbox watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("inbox directory is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		dir:       cfg.Dir,
		debounce:  cfg.DebounceDur,
		arrivals:  make(chan string, 16),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching the inbox directory.
// Returns a channel that receives the absolute path of each settled archive.
func (w *Watcher) Start() (<-chan string, error) {
	if err := w.fsWatcher.Add(w.dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", w.dir, err)
	}

	go w.loop()

	return w.arrivals, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// loop collects archive events and flushes them once the directory has been
// quiet for the debounce interval.
func (w *Watcher) loop() {
	var timer *time.Timer
	pending := make(map[string]struct{})

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !IsArchive(event) {
				continue
			}
			pending[event.Name] = struct{}{}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if !w.flush(pending) {
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "Inbox watch error", err, "dir", w.dir)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// flush emits every pending path that still names a regular file, in name
// order. Returns false if the watcher was stopped while sending.
func (w *Watcher) flush(pending map[string]struct{}) bool {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
		delete(pending, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			log.Debug(log.CatWatcher, "Archive vanished before it settled", "path", p)
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		select {
		case w.arrivals <- abs:
			log.Info(log.CatWatcher, "Archive arrived", "path", abs)
		case <-w.done:
			return false
		}
	}
	return true
}

// IsArchive reports whether the event creates or writes a visible .zip file.
// Hidden files are skipped since browsers and sync tools use them for partial
// downloads.
func IsArchive(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}

	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".zip")
}

// Dispatch calls start for every arrival until ctx is done or arrivals
// closes. Start errors are logged and do not stop the dispatch.
func Dispatch(ctx context.Context, arrivals <-chan string, start func(path string) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-arrivals:
			if !ok {
				return
			}
			if err := start(path); err != nil {
				log.Warn(log.CatWatcher, "Archive not started", "path", path, "error", err)
			}
		}
	}
}
