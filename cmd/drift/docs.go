package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// docsCmd renders the command tree as man pages or markdown. Hidden;
// used by packaging, not by operators.
var docsCmd = &cobra.Command{
	Use:       "gen-docs [man|markdown]",
	Short:     "Render CLI reference documentation",
	Hidden:    true,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"man", "markdown"},
	RunE:      runGenDocs,
}

func init() {
	docsCmd.Flags().String("out", "docs", "directory the rendered pages are written to")
}

func runGenDocs(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out") //nolint:errcheck // flag name is hardcoded
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", outDir, err)
	}

	if args[0] == "markdown" {
		return doc.GenMarkdownTree(cmd.Root(), outDir)
	}
	return doc.GenManTree(cmd.Root(), &doc.GenManHeader{
		Title:   "DRIFT",
		Section: "1",
		Source:  "drift " + version,
	}, outDir)
}
