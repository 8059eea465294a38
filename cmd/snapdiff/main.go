package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"snapdiff/internal/config"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:           "snapdiff",
		Short:         "Track entity changes across an ordered series of XML snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configPath            string
	logLevel              string
	historyDB             string
	runReport             string
	includeNewEmptyFields bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, color.RedString("❌ %v", err))
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&historyDB, "db", "", "Export every version and change line to this SQLite database")
	flags.StringVar(&runReport, "report-json", "", "Write a JSON run report to this path")
	flags.BoolVar(&includeNewEmptyFields, "include-new-empty-fields", false, "Report and emit newly added fields even when empty")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(deltasCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("db") {
		cfg.HistoryDB = historyDB
	}
	if flags.Changed("report-json") {
		cfg.RunReport = runReport
	}
	if flags.Changed("include-new-empty-fields") {
		cfg.IncludeNewEmptyFields = includeNewEmptyFields
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes text logs to a terminal and JSON otherwise.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
