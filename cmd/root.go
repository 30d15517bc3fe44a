package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TheOriginalAyaka/discord-package-app/internal/config"
	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop and appearing as
	// garbage text.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

const localConfigPath = ".dpkg/config.yaml"

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dpkg",
	Short: "Extract statistics from a Discord data package",
	Long: `dpkg reads a Discord data package archive and extracts the account overview
and, optionally, analytics event statistics. Extraction runs in an external
engine process; dpkg coordinates the session, shows its progress and keeps
a journal of attempts.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/dpkg/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write a debug log (path from DPKG_LOG, default debug.log)")
}

func initConfig() {
	setViperDefaults(config.Defaults())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .dpkg/config.yaml (current directory)
		// 2. ~/.config/dpkg/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			viper.AddConfigPath(userConfigDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default in the user config dir
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			defaultPath := filepath.Join(userConfigDir(), "config.yaml")
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

func setViperDefaults(d config.Config) {
	viper.SetDefault("engine.timeout", d.Engine.Timeout)
	viper.SetDefault("features", d.Features)
	viper.SetDefault("demo.primary_delay", d.Demo.PrimaryDelay)
	viper.SetDefault("demo.analytics_delay", d.Demo.AnalyticsDelay)
	viper.SetDefault("inbox.debounce", d.Inbox.Debounce)
	viper.SetDefault("journal.enabled", d.Journal.Enabled)
	viper.SetDefault("journal.path", d.Journal.Path)
	viper.SetDefault("tracing.enabled", d.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", d.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", d.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	viper.SetDefault("log.level", d.Log.Level)
}

func userConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "dpkg")
}

// configFilePath returns the config file in use, falling back to the user
// config path when none was loaded.
func configFilePath() string {
	if p := viper.ConfigFileUsed(); p != "" {
		return p
	}
	return filepath.Join(userConfigDir(), "config.yaml")
}

var logCleanup func()

// setup initializes logging (via --debug or DPKG_DEBUG) and validates the
// loaded configuration before any subcommand runs.
func setup(_ *cobra.Command, _ []string) error {
	debug := os.Getenv("DPKG_DEBUG") != "" || debugFlag
	if debug && logCleanup == nil {
		logPath := os.Getenv("DPKG_LOG")
		if logPath == "" {
			logPath = "debug.log"
		}

		cleanup, err := log.InitWithTeaLog(logPath, "dpkg")
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		logCleanup = cleanup
		log.SetMinLevel(log.ParseLevel(cfg.Log.Level))

		log.Info(log.CatConfig, "dpkg starting", "debug", true, "logPath", logPath, "config", viper.ConfigFileUsed())
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	defer func() {
		if logCleanup != nil {
			logCleanup()
		}
	}()
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
