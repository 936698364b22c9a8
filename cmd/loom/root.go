package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/corpusloom/loom"
)

// app carries the state every subcommand needs: the workspace layout and the
// logger, both fixed once when the root command runs.
type app struct {
	stdout io.Writer
	stderr io.Writer

	base      string
	logLevel  string
	logFormat string

	paths  loom.Paths
	logger *loom.Logger
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:           "loom",
		Short:         "Build a multimodal pretraining corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.base, "base", "storage", "workspace directory holding datasets, payloads and stores")
	flags.StringVar(&a.logLevel, "log-level", "info", "minimum log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "text", "log output format (text, json)")

	cmd.AddCommand(
		newDownloadCommand(a),
		newOrganiseCommand(a),
		newAnnotationsCommand(a),
		newBuildCommand(a),
		newSplitCommand(a),
		newStatsCommand(a),
	)

	return cmd
}

func (a *app) setup() error {
	var level slog.Level

	switch a.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", a.logLevel)
	}

	switch a.logFormat {
	case "text":
		a.logger = loom.NewTextLogger(level)
	case "json":
		a.logger = loom.NewJSONLogger(level)
	default:
		return fmt.Errorf("unknown log format %q", a.logFormat)
	}

	a.paths = loom.NewPaths(a.base)

	return a.paths.EnsureDirs()
}
