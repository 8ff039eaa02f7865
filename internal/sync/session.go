// Package sync implements the differential sync engine: per-file diff,
// staged range transfer, checksum verification, atomic commit, and the
// concurrent tree walk that drives it.
package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/driftsync/drift/internal/checkpoint"
	"github.com/driftsync/drift/internal/chunk"
	"github.com/driftsync/drift/internal/event"
	"github.com/driftsync/drift/internal/fetch"
	"github.com/driftsync/drift/internal/metrics"
	"github.com/driftsync/drift/internal/remote"
	"github.com/driftsync/drift/internal/stats"
)

// StagingSuffix is appended to a destination path to form its staging
// file. The staging file is never exposed as the destination until it is
// verified and renamed into place.
const StagingSuffix = ".partial"

// SessionConfig carries the shared collaborators a Session needs.
type SessionConfig struct {
	Indexer *chunk.Indexer
	Fetcher *fetch.Fetcher
	Stats   *stats.Collector
	Events  chan<- event.Event
	DryRun  bool
}

// Session synchronizes one remote file to one destination path. Create a
// new Session per (file, destination) pair; it is not reused.
type Session struct {
	cfg  SessionConfig
	file remote.File
	dest string
	rel  string // destination relative to the local root, for events
}

// NewSession creates a session for one remote file.
func NewSession(cfg SessionConfig, file remote.File, dest, rel string) *Session {
	return &Session{cfg: cfg, file: file, dest: dest, rel: rel}
}

// Run executes the session to a terminal state and returns the outcome.
// Failures never propagate as errors: every run produces exactly one
// Outcome, and the destination file is left untouched unless a verified
// staging file was renamed over it.
func (s *Session) Run(ctx context.Context) Outcome {
	metrics.TransfersInflight.Inc()
	defer metrics.TransfersInflight.Dec()

	resp, err := s.file.Open(ctx)
	if err != nil {
		return s.fail(0, fmt.Errorf("open remote %s: %w", s.file.Name(), err))
	}
	defer resp.Close()
	total := resp.Size

	local, err := s.cfg.Indexer.IndexLocal(s.dest)
	if err != nil {
		return s.fail(total, fmt.Errorf("index local copy: %w", err))
	}
	plan, err := s.cfg.Indexer.Diff(resp.Body, total, local)
	if err != nil {
		return s.fail(total, fmt.Errorf("diff against remote: %w", err))
	}

	if len(plan) == 0 {
		return s.unchanged(total)
	}
	if s.cfg.DryRun {
		return s.planned(total, plan)
	}
	return s.stage(ctx, resp.URL, total, plan)
}

// stage applies the diff plan to a staging file, verifies it, and
// atomically commits it over the destination.
func (s *Session) stage(ctx context.Context, url string, total int64, plan []chunk.Range) Outcome {
	s.emit(event.Event{Type: event.FileStarted, Path: s.rel, File: s.file.Name(), Ranges: len(plan)})
	slog.Info("download started",
		"event", event.FileStarted.LogName(),
		"file", s.file.Name(), "path", s.dest,
		"size", total, "changed_ranges", len(plan))

	if err := os.MkdirAll(filepath.Dir(s.dest), 0o755); err != nil {
		return s.fail(total, fmt.Errorf("create parent dir: %w", err))
	}

	staging := s.dest + StagingSuffix
	f, reused, err := s.openStaging(staging, total)
	if err != nil {
		return s.fail(total, err)
	}
	registerStaging(staging)

	// A sidecar describes progress against one specific staging file. It
	// is consulted only when that file survived; creating a fresh staging
	// file invalidates any sidecar a previous run left behind, so stale
	// offsets can never mark unapplied ranges as done.
	var resume checkpoint.State
	if reused {
		resume = checkpoint.Load(s.dest)
	} else if err := checkpoint.Clear(s.dest); err != nil {
		slog.Warn("stale checkpoint clear failed", "path", s.dest, "error", err)
	}

	abort := func() {
		f.Close()
		_ = os.Remove(staging)
		deregisterStaging(staging)
	}

	var transferred int64
	progress := func(n int64) {
		transferred += n
		s.cfg.Stats.AddBytesMoved(n)
		s.emit(event.Event{Type: event.FileProgress, Path: s.rel, File: s.file.Name(), Bytes: n})
	}

	for _, rng := range plan {
		// A staging file surviving a crashed run already holds every
		// byte below the checkpointed offset.
		if reused && rng.End < resume.Position {
			continue
		}
		if err := s.cfg.Fetcher.Fetch(ctx, url, rng, f, progress); err != nil {
			abort()
			return s.fail(total, err)
		}
		if err := checkpoint.Save(s.dest, rng.End+1); err != nil {
			slog.Warn("checkpoint save failed", "path", s.dest, "error", err)
		}
	}

	// The staging file must exist and, for non-empty content, hold bytes.
	info, err := f.Stat()
	if err != nil || (total > 0 && info.Size() == 0) {
		s.emit(event.Event{Type: event.InvalidStaging, Path: s.rel, File: s.file.Name()})
		slog.Error("staging file invalid",
			"event", event.InvalidStaging.LogName(),
			"file", s.file.Name(), "path", staging)
		abort()
		return s.fail(total, fmt.Errorf("staging file %s is empty or unreadable", staging))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(staging)
		deregisterStaging(staging)
		return s.fail(total, fmt.Errorf("close staging file: %w", err))
	}

	sum, err := HashFile(staging)
	if err != nil {
		_ = os.Remove(staging)
		deregisterStaging(staging)
		return s.fail(total, fmt.Errorf("checksum staging file: %w", err))
	}

	if err := os.Rename(staging, s.dest); err != nil {
		_ = os.Remove(staging)
		deregisterStaging(staging)
		return s.fail(total, fmt.Errorf("commit %s: %w", s.dest, err))
	}
	deregisterStaging(staging)

	if err := checkpoint.Clear(s.dest); err != nil {
		slog.Warn("checkpoint clear failed", "path", s.dest, "error", err)
	}

	s.cfg.Stats.AddFilesCompleted(1)
	s.cfg.Stats.AddRangesApplied(int64(len(plan)))
	metrics.FilesSynced.WithLabelValues("completed").Inc()
	s.emit(event.Event{Type: event.FileCompleted, Path: s.rel, File: s.file.Name(), Bytes: transferred, Ranges: len(plan)})
	slog.Info("download success",
		"event", event.FileCompleted.LogName(),
		"file", s.file.Name(), "path", s.dest,
		"bytes", transferred, "changed_ranges", len(plan), "checksum", sum)

	return Outcome{
		Path:       s.dest,
		Size:       total,
		Downloaded: transferred,
		Checksum:   sum,
		Status:     StatusCompleted,
		Changes:    len(plan),
	}
}

// openStaging prepares the staging file. A leftover staging file of the
// right size from a crashed run is reused so checkpointed progress is
// not thrown away; otherwise the file is seeded from the destination
// copy when one exists, or zero-filled to the declared size.
func (s *Session) openStaging(staging string, total int64) (*os.File, bool, error) {
	if info, err := os.Stat(staging); err == nil && info.Size() == total && total > 0 {
		f, err := os.OpenFile(staging, os.O_RDWR, 0o644)
		if err == nil {
			return f, true, nil
		}
	}

	f, err := os.OpenFile(staging, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("create staging file: %w", err)
	}

	if src, err := os.Open(s.dest); err == nil {
		_, cpErr := io.Copy(f, src)
		src.Close()
		if cpErr == nil {
			// Normalize to the declared size: a grown remote extends the
			// copy with zeros, a shrunk one drops the stale tail.
			cpErr = f.Truncate(total)
		}
		if cpErr != nil {
			f.Close()
			_ = os.Remove(staging)
			return nil, false, fmt.Errorf("seed staging from destination: %w", cpErr)
		}
		return f, false, nil
	}

	preallocate(f, total)
	if err := f.Truncate(total); err != nil {
		f.Close()
		_ = os.Remove(staging)
		return nil, false, fmt.Errorf("size staging file: %w", err)
	}
	return f, false, nil
}

func (s *Session) unchanged(total int64) Outcome {
	sum := ""
	if info, err := os.Stat(s.dest); err == nil && info.Size() > 0 {
		if h, err := HashFile(s.dest); err == nil {
			sum = h
		}
	}

	s.cfg.Stats.AddFilesUnchanged(1)
	metrics.FilesSynced.WithLabelValues("unchanged").Inc()
	s.emit(event.Event{Type: event.FileUnchanged, Path: s.rel, File: s.file.Name()})
	slog.Info("file unchanged",
		"event", event.FileUnchanged.LogName(),
		"file", s.file.Name(), "path", s.dest)

	return Outcome{
		Path:     s.dest,
		Size:     total,
		Checksum: sum,
		Status:   StatusCompleted,
	}
}

// planned is the dry-run terminal state: the diff is reported but no
// bytes move and no local file is touched.
func (s *Session) planned(total int64, plan []chunk.Range) Outcome {
	var pending int64
	for _, rng := range plan {
		pending += rng.Len()
	}

	s.emit(event.Event{Type: event.FileSkipped, Path: s.rel, File: s.file.Name(), Bytes: pending, Ranges: len(plan)})
	slog.Info("dry run: would download",
		"file", s.file.Name(), "path", s.dest,
		"bytes", pending, "changed_ranges", len(plan))

	return Outcome{
		Path:    s.dest,
		Size:    total,
		Status:  StatusCompleted,
		Changes: len(plan),
	}
}

func (s *Session) fail(total int64, err error) Outcome {
	s.cfg.Stats.AddFilesFailed(1)
	metrics.FilesSynced.WithLabelValues("failed").Inc()
	s.emit(event.Event{Type: event.FileFailed, Path: s.rel, File: s.file.Name(), Error: err})
	slog.Error("download failed",
		"event", event.FileFailed.LogName(),
		"file", s.file.Name(), "path", s.dest, "error", err)

	return Outcome{
		Path:     s.dest,
		Size:     total,
		Checksum: "",
		Status:   StatusFailed,
		Error:    err.Error(),
	}
}

func (s *Session) emit(ev event.Event) {
	if s.cfg.Events == nil {
		return
	}
	ev.Timestamp = time.Now()
	select {
	case s.cfg.Events <- ev:
	default:
	}
}
