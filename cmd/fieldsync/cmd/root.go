// Package cmd provides the command-line interface for fieldsync.
package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/fieldsync/config"
	"github.com/sarchlab/fieldsync/simulation"
)

type options struct {
	envFile     string
	quiescence  time.Duration
	db          string
	journal     string
	monitorPort int
	logLevel    string
	openBrowser bool

	cfg    config.Config
	logger *slog.Logger
}

// NewRootCmd creates the fieldsync command tree.
func NewRootCmd() *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:   "fieldsync",
		Short: "fieldsync edits values through debounced fields.",
		Long: `fieldsync edits values through debounced fields. It can replay ` +
			`scripted edit sessions in virtual time and edit the notes of ` +
			`projects stored in SQLite.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&o.envFile, "env-file", config.DefaultEnvFile,
		"Read settings from this .env file if it exists.")
	flags.DurationVar(&o.quiescence, "quiescence", 0,
		"Debounce window of every field.")
	flags.StringVar(&o.db, "db", "", "Path of the notes database.")
	flags.StringVar(&o.journal, "journal", "",
		"Path, without extension, of the activity journal.")
	flags.IntVar(&o.monitorPort, "monitor-port", 0,
		"Serve the monitor on this port. 0 disables it.")
	flags.StringVar(&o.logLevel, "log-level", "",
		"Log level: debug, info, warn or error.")
	flags.BoolVar(&o.openBrowser, "open-browser", false,
		"Open the monitor in a browser.")

	rootCmd.AddCommand(newReplayCmd(o), newNotesCmd(o))

	return rootCmd
}

// Execute runs the command line and returns the exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		return 1
	}

	return 0
}

// load merges defaults, .env, environment and the flags that were set.
func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()

	if flags.Changed("quiescence") {
		cfg.Quiescence = o.quiescence
	}

	if flags.Changed("db") {
		cfg.DB = o.db
	}

	if flags.Changed("journal") {
		cfg.Journal = o.journal
	}

	if flags.Changed("monitor-port") {
		cfg.MonitorPort = o.monitorPort
	}

	if flags.Changed("log-level") {
		if err := cfg.LogLevel.UnmarshalText([]byte(o.logLevel)); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	o.cfg = cfg
	o.logger = cfg.Logger(cmd.ErrOrStderr())
	slog.SetDefault(o.logger)

	return nil
}

func (o *options) newSimulation(wallClock bool) (*simulation.Simulation, error) {
	b := simulation.MakeBuilder().
		WithQuiescence(o.cfg.Quiescence).
		WithLogger(o.logger).
		WithOutputFileName(o.cfg.Journal)

	if wallClock {
		b = b.WithWallClock()
	}

	if o.cfg.MonitorPort == 0 {
		b = b.WithoutMonitoring()
	} else {
		b = b.WithMonitorPort(o.cfg.MonitorPort)
	}

	s, err := b.Build()
	if err != nil {
		return nil, err
	}

	if o.openBrowser && s.Monitor() != nil {
		if err := s.Monitor().OpenInBrowser(); err != nil {
			o.logger.Warn("cannot open browser", slog.Any("error", err))
		}
	}

	return s, nil
}

func closeAndLog(logger *slog.Logger, what string, f func() error) {
	if err := f(); err != nil {
		logger.Error("closing "+what+" failed", slog.Any("error", err))
	}
}
