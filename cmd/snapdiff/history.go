package main

import (
	"fmt"
	"io"

	"snapdiff/internal/catalog"
	"snapdiff/internal/pipeline"
	"snapdiff/internal/version"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <dir> <public-id>",
	Short: "Print every version chain of one entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cat, err := pipeline.NewRunner(args[0], *cfg, newLogger(cfg)).Build(cmd.Context())
		if err != nil {
			return err
		}
		return printHistory(cmd.OutOrStdout(), cat, args[1])
	},
}

func printHistory(w io.Writer, cat *catalog.Catalog, publicID string) error {
	root, ok := cat.Root(publicID)
	if !ok {
		return fmt.Errorf("no entity with %s %q", cat.IdentityAttribute(), publicID)
	}
	node := cat.Node(root)
	fmt.Fprintf(w, "%s %s=%s (introduced in %s)\n",
		color.New(color.Bold).Sprint(node.Tag()), cat.IdentityAttribute(), publicID, node.Introduced().Name)

	cat.Walk(root, func(id catalog.NodeID, _ int) bool {
		path := cat.Path(id)
		cat.Node(id).Fields(func(attr string, h version.History) bool {
			if h.Len() == 0 {
				return true
			}
			target := path
			if attr != "" {
				target += "@" + attr
			}
			fmt.Fprintf(w, "  %s\n", color.CyanString(target))
			for _, v := range h.Versions() {
				fmt.Fprintf(w, "    %-20s '%s'\n", v.Source().Name, v.Value())
			}
			return true
		})
		return true
	})
	return nil
}
