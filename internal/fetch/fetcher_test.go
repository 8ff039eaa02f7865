package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/drift/internal/chunk"
)

// memSink is an in-memory io.WriterAt for tests.
type memSink struct {
	buf []byte
}

func newMemSink(size int) *memSink { return &memSink{buf: make([]byte, size)} }

func (s *memSink) WriteAt(p []byte, off int64) (int, error) {
	copy(s.buf[off:], p)
	return len(p), nil
}

// rangeServer serves content honoring Range headers.
func rangeServer(t *testing.T, content []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		require.True(t, strings.HasPrefix(rng, "bytes="))

		var start, end int
		_, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end)
		require.NoError(t, err)

		w.Header().Set("Content-Length", strconv.Itoa(end-start+1))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(content[start : end+1])
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testFetcher(retries int) *Fetcher {
	return New(Config{MaxRetries: retries, Timeout: 5 * time.Second, BackoffUnit: time.Millisecond})
}

func TestFetch_WritesRangeAtOffset(t *testing.T) {
	t.Parallel()

	content := []byte("0123456789abcdef")
	srv := rangeServer(t, content)

	sink := newMemSink(len(content))
	err := testFetcher(3).Fetch(context.Background(), srv.URL, chunk.Range{Start: 4, End: 11}, sink, nil)
	require.NoError(t, err)

	assert.Equal(t, []byte("456789ab"), sink.buf[4:12])
	assert.Equal(t, make([]byte, 4), sink.buf[:4], "bytes outside the range stay untouched")
}

func TestFetch_ReportsProgress(t *testing.T) {
	t.Parallel()

	content := []byte("0123456789")
	srv := rangeServer(t, content)

	var total atomic.Int64
	sink := newMemSink(len(content))
	err := testFetcher(3).Fetch(context.Background(), srv.URL, chunk.Range{Start: 0, End: 9}, sink, func(n int64) {
		total.Add(n)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), total.Load())
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	content := []byte("hello world!")
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(content)
	}))
	t.Cleanup(srv.Close)

	sink := newMemSink(len(content))
	err := testFetcher(3).Fetch(context.Background(), srv.URL, chunk.Range{Start: 0, End: int64(len(content)) - 1}, sink, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, content, sink.buf)
}

func TestFetch_ExhaustedBudgetFails(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	rng := chunk.Range{Start: 0, End: 99}
	err := testFetcher(3).Fetch(context.Background(), srv.URL, rng, newMemSink(100), nil)
	require.Error(t, err)

	var te *TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, rng, te.Range)
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_FullBodyServerWritesFromZero(t *testing.T) {
	t.Parallel()

	// Servers without Range support answer 200 with the whole file.
	content := []byte("0123456789")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	}))
	t.Cleanup(srv.Close)

	sink := newMemSink(len(content))
	err := testFetcher(1).Fetch(context.Background(), srv.URL, chunk.Range{Start: 4, End: 9}, sink, nil)
	require.NoError(t, err)
	assert.Equal(t, content, sink.buf)
}

func TestFetch_FullBodyServerCountsOnlyRangeBytes(t *testing.T) {
	t.Parallel()

	// The 200 fallback re-sends the prefix ahead of the range; progress
	// must still total the range length, not the body length.
	content := []byte("0123456789")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	}))
	t.Cleanup(srv.Close)

	var total atomic.Int64
	sink := newMemSink(len(content))
	rng := chunk.Range{Start: 4, End: 9}
	err := testFetcher(1).Fetch(context.Background(), srv.URL, rng, sink, func(n int64) {
		total.Add(n)
	})
	require.NoError(t, err)
	assert.Equal(t, content, sink.buf)
	assert.Equal(t, rng.Len(), total.Load())
}

func TestFetch_ContextCancelDuringBackoff(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	f := New(Config{MaxRetries: 5, Timeout: time.Second, BackoffUnit: time.Hour})

	done := make(chan error, 1)
	go func() {
		done <- f.Fetch(ctx, srv.URL, chunk.Range{Start: 0, End: 9}, newMemSink(10), nil)
	}()
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not observe cancellation")
	}
}
