package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/driftsync/drift/internal/event"
	"github.com/driftsync/drift/internal/stats"
)

// plainPresenter outputs one line per finished file to stdout,
// and periodic progress to stderr.
type plainPresenter struct {
	w          io.Writer
	errW       io.Writer
	stats      *stats.Collector
	verbose    bool
	noProgress bool
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	progress := time.NewTicker(5 * time.Second)
	defer progress.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-tick.C:
			p.stats.Tick()
		case <-progress.C:
			if !p.noProgress {
				p.printProgress()
			}
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.FileCompleted:
		speed := p.stats.RollingSpeed(5)
		fmt.Fprintf(p.w, "%s  %s  %s\n", ev.Path, FormatBytes(ev.Bytes), FormatRate(speed))
	case event.FileUnchanged:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  unchanged\n", ev.Path)
		}
	case event.FileFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		fmt.Fprintf(p.w, "%s  %s\n", ev.Path, errMsg)
	case event.FileSkipped:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  skipped\n", ev.Path)
		}
	case event.DirCreated:
		if p.verbose {
			fmt.Fprintf(p.w, "%s/\n", ev.Path)
		}
	case event.ListingContents:
		if p.verbose {
			fmt.Fprintf(p.errW, "listing: %s\n", ev.Path)
		}
	case event.InvalidStaging:
		fmt.Fprintf(p.errW, "invalid staging file: %s\n", ev.Path)
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	speed := p.stats.RollingSpeed(10)
	fmt.Fprintf(p.errW, "progress: %s moved  %s/%s files  %s\n",
		FormatBytes(snap.BytesMoved),
		FormatCount(snap.FilesCompleted+snap.FilesUnchanged),
		FormatCount(snap.FilesSeen),
		FormatRate(speed),
	)
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}
