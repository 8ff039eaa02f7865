package ui

import (
	"github.com/driftsync/drift/internal/event"
	"github.com/driftsync/drift/internal/stats"
)

// quietPresenter consumes events but produces no output.
type quietPresenter struct {
	stats *stats.Collector
}

func (p *quietPresenter) Run(events <-chan event.Event) error {
	for range events {
		// Counters are written by the engine; nothing to display.
	}
	return nil
}

func (p *quietPresenter) Summary() string {
	return ""
}
