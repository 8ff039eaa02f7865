package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftsync/drift/internal/chunk"
	"github.com/driftsync/drift/internal/event"
	"github.com/driftsync/drift/internal/fetch"
	"github.com/driftsync/drift/internal/filter"
	"github.com/driftsync/drift/internal/remote"
	"github.com/driftsync/drift/internal/stats"
)

// DefaultWorkers is the default width of the shared worker pool.
const DefaultWorkers = 4

// WalkerConfig controls a tree walk.
type WalkerConfig struct {
	Workers int
	Indexer *chunk.Indexer
	Fetcher *fetch.Fetcher
	Stats   *stats.Collector
	Events  chan<- event.Event
	Filter  *filter.Chain
	DryRun  bool
}

// Walker applies the per-file sync engine across a remote directory
// hierarchy. One bounded pool of workers is shared across the whole
// walk; per-directory fan-out only enqueues tasks, it never spawns more
// pools. A child's failure never cancels its siblings.
type Walker struct {
	cfg       WalkerConfig
	active    *ActiveSet
	localRoot string

	queue       chan task
	outstanding gosync.WaitGroup // tasks enqueued but not yet processed

	mu       gosync.Mutex
	outcomes []Outcome
}

type task struct {
	item remote.Item
	dest string
}

// NewWalker creates a walker. The active-path set is owned by this
// walker and lives for exactly one Sync call.
func NewWalker(cfg WalkerConfig) *Walker {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	return &Walker{
		cfg:    cfg,
		active: NewActiveSet(),
		queue:  make(chan task, cfg.Workers*4),
	}
}

// Sync walks root and mirrors it under localRoot, returning the run
// report. The only fatal errors are an uncreatable local root; per-item
// failures are contained in the report. The walk is depth-complete
// before Sync returns.
func (w *Walker) Sync(ctx context.Context, root remote.Item, localRoot string) (Report, error) {
	if err := os.MkdirAll(localRoot, 0o755); err != nil {
		return Report{}, fmt.Errorf("create destination root: %w", err)
	}
	w.localRoot = localRoot
	runID := uuid.New().String()

	w.emit(event.Event{Type: event.SyncStarted, Path: localRoot, File: root.Name()})
	slog.Info("sync started",
		"event", event.SyncStarted.LogName(),
		"run_id", runID, "remote", root.Name(), "local_path", localRoot,
		"workers", w.cfg.Workers, "chunk_size", w.cfg.Indexer.WindowSize())

	var workerWg gosync.WaitGroup
	for range w.cfg.Workers {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for t := range w.queue {
				w.process(ctx, t)
				w.outstanding.Done()
			}
		}()
	}

	w.enqueue(task{item: root, dest: w.rootDest(root, localRoot)})

	// Wait for all tree work to finish, then close the queue so workers
	// exit their range loop.
	w.outstanding.Wait()
	close(w.queue)
	workerWg.Wait()

	report := BuildReport(runID, w.outcomes)
	if !w.cfg.DryRun {
		if err := report.Write(localRoot); err != nil {
			slog.Error("report write failed", "error", err)
		}
	}

	snap := w.cfg.Stats.Snapshot()
	w.emit(event.Event{Type: event.SyncComplete, Path: localRoot, Bytes: snap.BytesMoved})
	slog.Info("sync completed",
		"event", event.SyncComplete.LogName(),
		"run_id", runID,
		"total_files", report.Summary.TotalFiles,
		"successful", report.Summary.Successful,
		"failed", report.Summary.Failed,
		"bytes_transferred", report.Summary.TotalBytesTransferred,
		"changed_chunks", report.Summary.TotalChangedChunks)

	return report, nil
}

// rootDest places a file root inside localRoot under its own name;
// a directory root maps onto localRoot itself.
func (w *Walker) rootDest(root remote.Item, localRoot string) string {
	if _, ok := root.(remote.File); ok {
		return filepath.Join(localRoot, root.Name())
	}
	return localRoot
}

// enqueue adds a task without ever blocking a worker: directory workers
// enqueue their children, so a blocking send on a full queue could
// deadlock the pool.
func (w *Walker) enqueue(t task) {
	w.outstanding.Add(1)
	select {
	case w.queue <- t:
	default:
		go func() { w.queue <- t }()
	}
}

func (w *Walker) process(ctx context.Context, t task) {
	// Early abort: stop picking up new work, let in-flight sessions drain.
	if ctx.Err() != nil {
		return
	}

	switch it := t.item.(type) {
	case remote.File:
		w.syncFile(ctx, it, t.dest)
	case remote.Dir:
		w.walkDir(ctx, it, t.dest)
	default:
		w.cfg.Stats.AddFilesSkipped(1)
		w.emit(event.Event{Type: event.FileSkipped, Path: w.rel(t.dest), File: t.item.Name()})
		slog.Warn("unclassifiable remote item skipped", "name", t.item.Name(), "path", t.dest)
	}
}

func (w *Walker) syncFile(ctx context.Context, file remote.File, dest string) {
	rel := w.rel(dest)
	w.cfg.Stats.AddFilesSeen(1)

	if w.cfg.Filter != nil && !w.cfg.Filter.Match(rel, false, file.Size()) {
		w.cfg.Stats.AddFilesSkipped(1)
		w.emit(event.Event{Type: event.FileSkipped, Path: rel, File: file.Name()})
		slog.Debug("file filtered out", "path", rel)
		return
	}

	// At most one in-flight session per destination path.
	if !w.active.TryAcquire(dest) {
		slog.Debug("path already active, skipping duplicate", "path", dest)
		return
	}
	defer w.active.Release(dest)

	sess := NewSession(SessionConfig{
		Indexer: w.cfg.Indexer,
		Fetcher: w.cfg.Fetcher,
		Stats:   w.cfg.Stats,
		Events:  w.cfg.Events,
		DryRun:  w.cfg.DryRun,
	}, file, dest, rel)

	outcome := sess.Run(ctx)

	w.mu.Lock()
	w.outcomes = append(w.outcomes, outcome)
	w.mu.Unlock()
}

func (w *Walker) walkDir(ctx context.Context, dir remote.Dir, dest string) {
	rel := w.rel(dest)
	if rel != "" && w.cfg.Filter != nil && !w.cfg.Filter.Match(rel, true, 0) {
		slog.Debug("directory filtered out", "path", rel)
		return
	}

	if !w.cfg.DryRun {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			slog.Error("create directory failed", "path", dest, "error", err)
			return
		}
		w.cfg.Stats.AddDirsCreated(1)
		w.emit(event.Event{Type: event.DirCreated, Path: rel, File: dir.Name()})
	}

	children, err := dir.Children(ctx)
	if err != nil {
		slog.Error("list directory failed",
			"event", event.ListingContents.LogName(),
			"name", dir.Name(), "path", dest, "error", err)
		return
	}
	w.emit(event.Event{Type: event.ListingContents, Path: rel, File: dir.Name(), Ranges: len(children)})
	slog.Debug("listing contents",
		"event", event.ListingContents.LogName(),
		"name", dir.Name(), "entries", len(children))

	for _, child := range children {
		w.enqueue(task{item: child, dest: filepath.Join(dest, child.Name())})
	}
}

func (w *Walker) rel(dest string) string {
	rel, err := filepath.Rel(w.localRoot, dest)
	if err != nil || rel == "." {
		return ""
	}
	return rel
}

func (w *Walker) emit(ev event.Event) {
	if w.cfg.Events == nil {
		return
	}
	ev.Timestamp = time.Now()
	select {
	case w.cfg.Events <- ev:
	default:
	}
}
