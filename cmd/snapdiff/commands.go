package main

import (
	"fmt"

	"snapdiff/internal/pipeline"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <dir>",
	Short: "Write the change report and the delta documents for a data directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMode(cmd, args[0], pipeline.ModeAll)
	},
}

var changesCmd = &cobra.Command{
	Use:   "changes <dir>",
	Short: "Write only the human-readable change report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMode(cmd, args[0], pipeline.ModeChanges)
	},
}

var deltasCmd = &cobra.Command{
	Use:   "deltas <dir>",
	Short: "Write only the per-snapshot delta documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMode(cmd, args[0], pipeline.ModeDeltas)
	},
}

func runMode(cmd *cobra.Command, dir string, mode pipeline.Mode) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📂 Processing snapshots in: %s\n", dir)

	res, err := pipeline.NewRunner(dir, *cfg, newLogger(cfg)).Run(cmd.Context(), mode)
	if err != nil {
		return err
	}

	stats := res.Catalog.Stats()
	fmt.Fprintf(out, "📊 Catalog: %d files, %d entities, %d nodes, %d versions\n",
		len(res.Files), stats.Entities, stats.Nodes, stats.Versions)
	if res.ReportFile != "" {
		fmt.Fprintf(out, "📝 %s change lines in %d sections -> %s\n",
			color.CyanString("%d", res.ChangeLines()), len(res.Sections), res.ReportFile)
	}
	if res.DeltaDir != "" {
		fmt.Fprintf(out, "🧩 %s delta documents -> %s\n", color.CyanString("%d", len(res.Deltas)), res.DeltaDir)
	}
	if res.HistoryDB != "" {
		fmt.Fprintf(out, "🗄️  History exported -> %s\n", res.HistoryDB)
	}
	if res.RunReport != "" {
		fmt.Fprintf(out, "📈 Run report -> %s\n", res.RunReport)
	}
	fmt.Fprintln(out, color.GreenString("✅ Done."))
	return nil
}
