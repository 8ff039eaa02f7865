// Package fetch performs single HTTP range requests with bounded retries
// and exponential backoff, streaming response bytes directly into a sink
// at the range's offset.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/driftsync/drift/internal/chunk"
	"github.com/driftsync/drift/internal/metrics"
)

const (
	// DefaultMaxRetries is the per-range attempt budget.
	DefaultMaxRetries = 3
	// DefaultTimeout bounds a single attempt end to end.
	DefaultTimeout = 30 * time.Second

	copyBufSize = 32 * 1024
)

// Progress receives incremental byte counts as they are written to the
// sink. Advisory only: it drives progress display, not correctness.
type Progress func(n int64)

// TransferError is returned once the retry budget for a range is spent.
type TransferError struct {
	Range    chunk.Range
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("fetch range %d-%d failed after %d attempts: %v",
		e.Range.Start, e.Range.End, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Config controls Fetcher behavior.
type Config struct {
	MaxRetries  int
	Timeout     time.Duration
	BackoffUnit time.Duration // scales the 2^n backoff; tests shrink it
	Client      *http.Client  // optional; a tuned client is built when nil
}

// Fetcher issues byte-range requests against a URL.
type Fetcher struct {
	client  *http.Client
	retries int
	timeout time.Duration
	backoff time.Duration
}

// New creates a Fetcher from cfg, applying defaults for zero fields.
func New(cfg Config) *Fetcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				ForceAttemptHTTP2:   true,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Fetcher{
		client:  cfg.Client,
		retries: cfg.MaxRetries,
		timeout: cfg.Timeout,
		backoff: cfg.BackoffUnit,
	}
}

// Fetch downloads the inclusive byte range rng from url into sink.
// Bytes are streamed in bounded buffers, never held fully in memory.
// Each failed attempt waits 2^n backoff units before the next; spending
// the whole budget returns a *TransferError.
func (f *Fetcher) Fetch(ctx context.Context, url string, rng chunk.Range, sink io.WriterAt, progress Progress) error {
	var lastErr error
	for attempt := 1; attempt <= f.retries; attempt++ {
		err := f.attempt(ctx, url, rng, sink, progress)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < f.retries {
			metrics.FetchRetries.Inc()
			wait := time.Duration(1<<attempt) * f.backoff
			select {
			case <-ctx.Done():
				return &TransferError{Range: rng, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(wait):
			}
		}
	}
	return &TransferError{Range: rng, Attempts: f.retries, Err: lastErr}
}

func (f *Fetcher) attempt(ctx context.Context, url string, rng chunk.Range, sink io.WriterAt, progress Progress) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build range request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End))

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.FetchAttempts.WithLabelValues("error", "0").Inc()
		return fmt.Errorf("range %d-%d: %w", rng.Start, rng.End, err)
	}
	defer resp.Body.Close()

	code := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		metrics.FetchAttempts.WithLabelValues("bad_status", code).Inc()
		return fmt.Errorf("range %d-%d: unexpected status %s", rng.Start, rng.End, resp.Status)
	}

	// A server that ignores Range answers 200 with the full body starting
	// at offset 0; a 206 body starts at rng.Start. Either way progress
	// counts only bytes inside the requested range, so transfer totals
	// stay the sum of the changed ranges.
	offset := rng.Start
	length := rng.Len()
	if resp.StatusCode == http.StatusOK {
		offset = 0
		length = rng.End + 1
	}

	w := &offsetWriter{w: sink, off: offset, countFrom: rng.Start, progress: progress}
	buf := make([]byte, copyBufSize)
	if _, err := io.CopyBuffer(w, io.LimitReader(resp.Body, length), buf); err != nil {
		metrics.FetchAttempts.WithLabelValues("error", code).Inc()
		return fmt.Errorf("stream range %d-%d: %w", rng.Start, rng.End, err)
	}

	metrics.FetchAttempts.WithLabelValues("ok", code).Inc()
	metrics.BytesTransferred.Add(float64(w.written))
	return nil
}

// offsetWriter adapts an io.WriterAt into a sequential writer starting
// at off. Bytes below countFrom are written but not reported as
// progress; a 200 fallback re-sends the prefix ahead of the range.
type offsetWriter struct {
	w         io.WriterAt
	off       int64
	countFrom int64
	written   int64
	progress  Progress
}

func (w *offsetWriter) Write(p []byte) (int, error) {
	n, err := w.w.WriteAt(p, w.off)
	if n > 0 {
		counted := int64(n)
		if skip := w.countFrom - w.off; skip > 0 {
			counted -= skip
		}
		w.written += int64(n)
		if w.progress != nil && counted > 0 {
			w.progress(counted)
		}
	}
	w.off += int64(n)
	return n, err
}
