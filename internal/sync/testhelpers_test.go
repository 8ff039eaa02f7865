package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"testing"
	"time"

	"github.com/driftsync/drift/internal/chunk"
	"github.com/driftsync/drift/internal/fetch"
	"github.com/driftsync/drift/internal/remote"
	"github.com/driftsync/drift/internal/stats"
)

const testWindow = 1024

// fakeStore serves fake remote file content over HTTP with Range support
// and builds remote.Item trees for walker tests.
type fakeStore struct {
	t   *testing.T
	srv *httptest.Server

	mu    gosync.Mutex
	files map[string][]byte
	// failFrom, when set for a path, fails every request whose range
	// starts at or beyond the offset.
	failFrom map[string]int64
	requests map[string]int
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	fs := &fakeStore{
		t:        t,
		files:    make(map[string][]byte),
		failFrom: make(map[string]int64),
		requests: make(map[string]int),
	}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeStore) handle(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	content, ok := fs.files[r.URL.Path]
	failFrom, hasFail := fs.failFrom[r.URL.Path]
	fs.requests[r.URL.Path]++
	fs.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var start, end int64
	if _, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if hasFail && start >= failFrom {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if end >= int64(len(content)) {
		end = int64(len(content)) - 1
	}

	w.WriteHeader(http.StatusPartialContent)
	_, _ = w.Write(content[start : end+1])
}

// requestCount returns how many HTTP requests hit the given file path.
func (fs *fakeStore) requestCount(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.requests["/"+path]
}

// file registers content under name and returns a remote.File for it.
func (fs *fakeStore) file(name string, content []byte) *fakeFile {
	fs.mu.Lock()
	fs.files["/"+name] = content
	fs.mu.Unlock()
	return &fakeFile{store: fs, name: name, size: int64(len(content))}
}

// failRangesFrom makes requests for name fail once the range start
// reaches offset.
func (fs *fakeStore) failRangesFrom(name string, offset int64) {
	fs.mu.Lock()
	fs.failFrom["/"+name] = offset
	fs.mu.Unlock()
}

type fakeFile struct {
	store *fakeStore
	name  string
	size  int64

	openErr error
	// onOpen, when set, runs inside Open before returning.
	onOpen func()
}

func (f *fakeFile) Name() string { return f.name }
func (f *fakeFile) Size() int64  { return f.size }

func (f *fakeFile) Open(_ context.Context) (*remote.Response, error) {
	if f.onOpen != nil {
		f.onOpen()
	}
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.store.mu.Lock()
	content := f.store.files["/"+f.name]
	f.store.mu.Unlock()

	return &remote.Response{
		Size: f.size,
		URL:  f.store.srv.URL + "/" + f.name,
		Body: nopSeekCloser{bytes.NewReader(content)},
	}, nil
}

type nopSeekCloser struct{ *bytes.Reader }

func (nopSeekCloser) Close() error { return nil }

type fakeDir struct {
	name     string
	children []remote.Item
	err      error
}

func (d *fakeDir) Name() string { return d.name }

func (d *fakeDir) Children(_ context.Context) ([]remote.Item, error) {
	return d.children, d.err
}

// opaqueItem is neither a file nor a directory.
type opaqueItem struct{ name string }

func (o *opaqueItem) Name() string { return o.name }

func testSessionConfig() SessionConfig {
	return SessionConfig{
		Indexer: chunk.NewIndexer(testWindow),
		Fetcher: fetch.New(fetch.Config{MaxRetries: 3, Timeout: 5 * time.Second, BackoffUnit: time.Millisecond}),
		Stats:   stats.NewCollector(),
	}
}

// windows builds len(fill) test windows, each filled with one byte value.
func windows(fill ...byte) []byte {
	buf := make([]byte, 0, len(fill)*testWindow)
	for _, b := range fill {
		buf = append(buf, bytes.Repeat([]byte{b}, testWindow)...)
	}
	return buf
}

var _ io.ReadSeekCloser = nopSeekCloser{}
