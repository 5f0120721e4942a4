package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/constitution/pkg/cli"
	"mercator-hq/constitution/pkg/config"
	"mercator-hq/constitution/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "constitution",
	Short: "Constitution - policy enforcement around agent tool calls",
	Long: `Constitution loads a declarative policy document and enforces it at two
checkpoints of every agent request:

  - pre-check: the user request, before any tool runs
  - post-check: the tool output, before it reaches the user

Rules detect content with keywords, patterns, thresholds, structural checks,
field checks or CEL predicates, and respond by blocking, redacting or
annotating. Checks are fail-closed by default.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.Err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.ExitCode(err))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults apply when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig reads --config with CONSTITUTION_* overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewCommandError("config", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger. One-shot commands log to stderr so
// stdout carries only results.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	logger, err := logging.FromConfig(cfg.Logging, w)
	if err != nil {
		return nil, cli.NewConfigError("logging", err.Error())
	}
	return logger, nil
}

// stdout is where results go. cmd is nil when a RunE func is called
// directly.
func stdout(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}
