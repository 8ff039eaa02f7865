// Package stats tracks sync run counters.
package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Collector tracks sync statistics using lock-free atomic counters.
type Collector struct {
	filesSeen      atomic.Int64
	filesUnchanged atomic.Int64
	filesCompleted atomic.Int64
	filesFailed    atomic.Int64
	filesSkipped   atomic.Int64
	dirsCreated    atomic.Int64
	bytesMoved     atomic.Int64
	rangesApplied  atomic.Int64
	startTime      time.Time

	// Ring buffer, written only by the presenter's Tick(), not workers.
	mu         sync.Mutex
	throughput [ringSize]int64 // bytes delta per second
	ringIdx    int
	ringCount  int
	lastBytes  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesSeen      int64
	FilesUnchanged int64
	FilesCompleted int64
	FilesFailed    int64
	FilesSkipped   int64
	DirsCreated    int64
	BytesMoved     int64
	RangesApplied  int64
	Elapsed        time.Duration
}

func (c *Collector) AddFilesSeen(n int64)      { c.filesSeen.Add(n) }
func (c *Collector) AddFilesUnchanged(n int64) { c.filesUnchanged.Add(n) }
func (c *Collector) AddFilesCompleted(n int64) { c.filesCompleted.Add(n) }
func (c *Collector) AddFilesFailed(n int64)    { c.filesFailed.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)   { c.filesSkipped.Add(n) }
func (c *Collector) AddDirsCreated(n int64)    { c.dirsCreated.Add(n) }
func (c *Collector) AddBytesMoved(n int64)     { c.bytesMoved.Add(n) }
func (c *Collector) AddRangesApplied(n int64)  { c.rangesApplied.Add(n) }

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesSeen:      c.filesSeen.Load(),
		FilesUnchanged: c.filesUnchanged.Load(),
		FilesCompleted: c.filesCompleted.Load(),
		FilesFailed:    c.filesFailed.Load(),
		FilesSkipped:   c.filesSkipped.Load(),
		DirsCreated:    c.dirsCreated.Load(),
		BytesMoved:     c.bytesMoved.Load(),
		RangesApplied:  c.rangesApplied.Load(),
		Elapsed:        c.Elapsed(),
	}
}

// Tick snapshots the byte delta into the ring buffer. Called 1/sec by the presenter.
func (c *Collector) Tick() {
	currentBytes := c.bytesMoved.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	delta := currentBytes - c.lastBytes
	c.lastBytes = currentBytes

	c.throughput[c.ringIdx] = delta
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := seconds
	if count > c.ringCount {
		count = c.ringCount
	}
	if count == 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += c.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"seen=%d unchanged=%d completed=%d failed=%d skipped=%d bytes=%d ranges=%d",
		s.FilesSeen, s.FilesUnchanged, s.FilesCompleted, s.FilesFailed,
		s.FilesSkipped, s.BytesMoved, s.RangesApplied,
	)
}
