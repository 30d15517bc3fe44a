// Package config provides configuration types and defaults for dpkg.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TheOriginalAyaka/discord-package-app/internal/features"
	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
)

// Config holds all configuration options for dpkg.
type Config struct {
	Engine   EngineConfig    `mapstructure:"engine"`
	Features map[string]bool `mapstructure:"features"`
	Demo     DemoConfig      `mapstructure:"demo"`
	Inbox    InboxConfig     `mapstructure:"inbox"`
	Journal  JournalConfig   `mapstructure:"journal"`
	Tracing  TracingConfig   `mapstructure:"tracing"`
	Log      LogConfig       `mapstructure:"log"`
}

// EngineConfig describes how to launch the extraction engine executable.
type EngineConfig struct {
	// Command is the engine executable (looked up in PATH when not absolute).
	// Empty disables real extractions; only demo mode is available.
	Command string `mapstructure:"command"`

	// Args are passed before --input <path> [--analytics].
	Args []string `mapstructure:"args"`

	// Timeout bounds a single extraction process. Zero means no limit.
	// Default: 30m
	Timeout time.Duration `mapstructure:"timeout"`
}

// DemoConfig controls the scripted demo session timings.
type DemoConfig struct {
	PrimaryDelay   time.Duration `mapstructure:"primary_delay"`   // Default: 3s
	AnalyticsDelay time.Duration `mapstructure:"analytics_delay"` // Default: 10s, measured from start
}

// InboxConfig configures `dpkg watch`.
type InboxConfig struct {
	Dir      string        `mapstructure:"dir"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// JournalConfig configures the session attempt journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig controls the debug log written with --debug.
type LogConfig struct {
	// Level is the lowest level written: debug, info, warn or error.
	// Default: debug
	Level string `mapstructure:"level"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/dpkg/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// FeatureSet returns the configured feature set. Overview is always enabled.
func (c Config) FeatureSet() features.Set {
	if c.Features == nil {
		return features.Default
	}
	return features.New(c.Features)
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/dpkg/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "dpkg", "traces", "traces.jsonl")
}

// DefaultJournalPath returns ~/.local/share/dpkg/journal.db or empty string
// if the home dir is unavailable.
func DefaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "dpkg", "journal.db")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// ValidateEngine checks engine configuration for errors.
func ValidateEngine(engine EngineConfig) error {
	if engine.Timeout < 0 {
		return fmt.Errorf("engine.timeout must not be negative, got %s", engine.Timeout)
	}
	if engine.Command == "" && len(engine.Args) > 0 {
		return fmt.Errorf("engine.args set without engine.command")
	}
	return nil
}

// ValidateFeatures rejects unknown feature names.
func ValidateFeatures(m map[string]bool) error {
	for name := range m {
		known := false
		for _, f := range features.Known() {
			if strings.EqualFold(name, string(f)) {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("features: unknown feature %q", name)
		}
		if strings.EqualFold(name, string(features.Overview)) && !m[name] {
			return fmt.Errorf("features.overview cannot be disabled")
		}
	}
	return nil
}

// ValidateDemo checks the demo timings.
func ValidateDemo(demo DemoConfig) error {
	if demo.PrimaryDelay < 0 {
		return fmt.Errorf("demo.primary_delay must not be negative, got %s", demo.PrimaryDelay)
	}
	if demo.AnalyticsDelay < 0 {
		return fmt.Errorf("demo.analytics_delay must not be negative, got %s", demo.AnalyticsDelay)
	}
	if demo.AnalyticsDelay != 0 && demo.AnalyticsDelay < demo.PrimaryDelay {
		return fmt.Errorf("demo.analytics_delay (%s) must not be shorter than demo.primary_delay (%s)",
			demo.AnalyticsDelay, demo.PrimaryDelay)
	}
	return nil
}

// ValidateInbox checks the inbox watcher settings.
func ValidateInbox(inbox InboxConfig) error {
	if inbox.Debounce < 0 {
		return fmt.Errorf("inbox.debounce must not be negative, got %s", inbox.Debounce)
	}
	return nil
}

// ValidateJournal checks the journal settings.
func ValidateJournal(journal JournalConfig) error {
	if journal.Enabled && journal.Path == "" {
		return fmt.Errorf("journal.path is required when journal is enabled")
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// ValidateLog checks the log level name. Empty means debug.
func ValidateLog(l LogConfig) error {
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", l.Level)
	}
}

// Validate runs every section validator and returns the first error.
func (c Config) Validate() error {
	if err := ValidateEngine(c.Engine); err != nil {
		return err
	}
	if err := ValidateFeatures(c.Features); err != nil {
		return err
	}
	if err := ValidateDemo(c.Demo); err != nil {
		return err
	}
	if err := ValidateInbox(c.Inbox); err != nil {
		return err
	}
	if err := ValidateJournal(c.Journal); err != nil {
		return err
	}
	if err := ValidateLog(c.Log); err != nil {
		return err
	}
	return ValidateTracing(c.Tracing)
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Timeout: 30 * time.Minute,
		},
		Features: features.Default.Map(),
		Demo: DemoConfig{
			PrimaryDelay:   3 * time.Second,
			AnalyticsDelay: 10 * time.Second,
		},
		Inbox: InboxConfig{
			Debounce: time.Second,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    DefaultJournalPath(),
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# dpkg configuration

# Extraction engine. dpkg runs: <command> <args...> --input <archive> [--analytics]
# and reads one JSON event per line from its stdout.
engine:
  # command: dpkg-engine
  # args: []
  timeout: 30m            # Upper bound for a single extraction (0 = no limit)

# Data sets requested for new sessions. overview is always extracted.
features:
  overview: true
  analytics: true

# Scripted demo session (dpkg demo)
demo:
  primary_delay: 3s       # Delay before the overview results arrive
  analytics_delay: 10s    # Delay before the analytics results arrive, from start

# Inbox watch mode (dpkg watch): new .zip archives dropped here start a session
inbox:
  # dir: ~/Downloads/discord
  debounce: 1s

# Session journal (dpkg history). Only attempt metadata is stored, never results.
journal:
  enabled: true
  # path: ~/.local/share/dpkg/journal.db

# Debug log, written with --debug or DPKG_DEBUG
log:
  level: debug            # debug, info, warn or error

# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/dpkg/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
