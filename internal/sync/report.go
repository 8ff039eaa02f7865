package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReportFilename is the run report written at the local destination root.
const ReportFilename = "sync-report.json"

// Outcome statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Outcome is the per-file record of one sync attempt. Immutable after
// creation.
type Outcome struct {
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	Downloaded int64  `json:"downloaded"`
	Checksum   string `json:"checksum"`
	Status     string `json:"status"`
	Changes    int    `json:"changes"`
	Error      string `json:"error,omitempty"`
}

// Summary aggregates outcomes for one run.
type Summary struct {
	RunID                 string `json:"run_id"`
	TotalFiles            int    `json:"total_files"`
	Successful            int    `json:"successful"`
	Failed                int    `json:"failed"`
	TotalBytesTransferred int64  `json:"total_bytes_transferred"`
	TotalChangedChunks    int64  `json:"total_changed_chunks"`
	Timestamp             string `json:"timestamp"`
}

// Report is the externally visible result of one Walker run.
type Report struct {
	Summary Summary   `json:"summary"`
	Details []Outcome `json:"details"`
}

// BuildReport computes the summary over outcomes.
func BuildReport(runID string, outcomes []Outcome) Report {
	s := Summary{
		RunID:      runID,
		TotalFiles: len(outcomes),
		Timestamp:  time.Now().Format("2006-01-02 15:04:05"),
	}
	for _, o := range outcomes {
		switch o.Status {
		case StatusCompleted:
			s.Successful++
		case StatusFailed:
			s.Failed++
		}
		s.TotalBytesTransferred += o.Downloaded
		s.TotalChangedChunks += int64(o.Changes)
	}
	return Report{Summary: s, Details: outcomes}
}

// Write persists the report as ReportFilename under dir.
func (r Report) Write(dir string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	path := filepath.Join(dir, ReportFilename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
