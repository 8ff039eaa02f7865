// Package chunk implements fixed-window content hashing and range diffing
// between a local file and a remote byte source.
package chunk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/zeebo/blake3"
)

// DefaultWindowSize is the default hashing window (1 MiB).
const DefaultWindowSize = 1 << 20

// Sum is a 128-bit window content hash (truncated BLAKE3).
type Sum [16]byte

// Range is an inclusive byte range within a file.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() int64 { return r.End - r.Start + 1 }

// Map associates window content hashes with the range they were last seen
// at. Only key presence is consulted during diffing, so duplicate content
// at different offsets collapsing to one entry is fine.
type Map map[Sum]Range

// Indexer scans byte sources in fixed-size sequential windows.
type Indexer struct {
	windowSize int64
}

// NewIndexer creates an Indexer. A non-positive windowSize selects
// DefaultWindowSize.
func NewIndexer(windowSize int64) *Indexer {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Indexer{windowSize: windowSize}
}

// WindowSize returns the configured window size in bytes.
func (ix *Indexer) WindowSize() int64 { return ix.windowSize }

// IndexLocal hashes the file at path window by window from offset 0.
// A missing or empty file yields an empty map: that is the "no prior
// state" case, not an error.
func (ix *Indexer) IndexLocal(path string) (Map, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return Map{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return Map{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	m := Map{}
	buf := make([]byte, ix.windowSize)
	var pos int64
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			m[hashWindow(buf[:n])] = Range{Start: pos, End: pos + int64(n) - 1}
			pos += int64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return m, nil
}

// Diff scans src in windowSize steps and returns the merged, ascending
// set of ranges whose window hash is absent from local. An empty local
// map means the whole file is new: the plan is the single range
// [0, total-1]. The read cursor of src is restored before returning so
// the same source can feed the actual transfer.
func (ix *Indexer) Diff(src io.ReadSeeker, total int64, local Map) ([]Range, error) {
	if len(local) == 0 {
		if total > 0 {
			return []Range{{Start: 0, End: total - 1}}, nil
		}
		return nil, nil
	}

	orig, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("tell remote cursor: %w", err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind remote cursor: %w", err)
	}

	var changed []Range
	buf := make([]byte, ix.windowSize)
	var pos int64
	for pos < total {
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			if _, ok := local[hashWindow(buf[:n])]; !ok {
				changed = append(changed, Range{Start: pos, End: pos + int64(n) - 1})
			}
			pos += int64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read remote window at %d: %w", pos, err)
		}
	}

	if _, err := src.Seek(orig, io.SeekStart); err != nil {
		return nil, fmt.Errorf("restore remote cursor: %w", err)
	}

	return MergeRanges(changed), nil
}

// MergeRanges sorts ranges ascending by start and coalesces adjacent or
// overlapping entries. The result never contains two ranges where
// next.Start <= prev.End+1. Merging is idempotent.
func MergeRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	merged := []Range{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

func hashWindow(b []byte) Sum {
	h := blake3.New()
	h.Write(b)
	var s Sum
	_, _ = io.ReadFull(h.Digest(), s[:])
	return s
}
