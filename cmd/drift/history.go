package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftsync/drift/internal/journal"
	"github.com/driftsync/drift/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to show")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit") //nolint:errcheck // flag name is hardcoded

	j, err := journal.Open()
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	runs, err := j.Recent(limit)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "no runs recorded")
		return nil
	}

	for _, r := range runs {
		status := "ok"
		if r.Failed > 0 {
			status = fmt.Sprintf("%d failed", r.Failed)
		}
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(os.Stdout, "%s  %s  %s -> %s  files %s  %s  %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"),
			id,
			r.Remote, r.Local,
			ui.FormatCount(int64(r.TotalFiles)),
			ui.FormatBytes(r.Bytes),
			status,
		)
	}
	return nil
}
