package sync

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/drift/internal/chunk"
	"github.com/driftsync/drift/internal/fetch"
	"github.com/driftsync/drift/internal/filter"
	"github.com/driftsync/drift/internal/remote"
	"github.com/driftsync/drift/internal/stats"
)

func testWalkerConfig() WalkerConfig {
	return WalkerConfig{
		Workers: 2,
		Indexer: chunk.NewIndexer(testWindow),
		Fetcher: fetch.New(fetch.Config{MaxRetries: 3, Timeout: 5 * time.Second, BackoffUnit: time.Millisecond}),
		Stats:   stats.NewCollector(),
	}
}

func TestWalker_SyncsNestedTree(t *testing.T) {
	t.Parallel()

	store := newFakeStore(t)
	root := &fakeDir{name: "root", children: []remote.Item{
		store.file("a.bin", windows('a')),
		&fakeDir{name: "sub", children: []remote.Item{
			store.file("sub/b.bin", windows('b', 'c')),
			&fakeDir{name: "deep", children: []remote.Item{
				store.file("sub/deep/c.bin", windows('d')),
			}},
		}},
	}}

	localRoot := t.TempDir()
	report, err := NewWalker(testWalkerConfig()).Sync(context.Background(), root, localRoot)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Summary.TotalFiles)
	assert.Equal(t, 3, report.Summary.Successful)
	assert.Zero(t, report.Summary.Failed)
	assert.Equal(t, int64(4*testWindow), report.Summary.TotalBytesTransferred)

	assert.FileExists(t, filepath.Join(localRoot, "a.bin"))
	assert.FileExists(t, filepath.Join(localRoot, "sub", "b.bin"))
	assert.FileExists(t, filepath.Join(localRoot, "sub", "deep", "c.bin"))
	assert.FileExists(t, filepath.Join(localRoot, ReportFilename))
}

func TestWalker_FileRootLandsUnderLocalRoot(t *testing.T) {
	t.Parallel()

	store := newFakeStore(t)
	file := store.file("single.bin", windows('z'))

	localRoot := t.TempDir()
	report, err := NewWalker(testWalkerConfig()).Sync(context.Background(), file, localRoot)
	require.NoError(t, err)

	require.Equal(t, 1, report.Summary.TotalFiles)
	assert.FileExists(t, filepath.Join(localRoot, "single.bin"))
}

func TestWalker_FailedChildDoesNotCancelSiblings(t *testing.T) {
	t.Parallel()

	store := newFakeStore(t)
	store.failRangesFrom("bad.bin", 0)
	root := &fakeDir{name: "root", children: []remote.Item{
		store.file("good.bin", windows('a')),
		store.file("bad.bin", windows('b')),
	}}

	localRoot := t.TempDir()
	report, err := NewWalker(testWalkerConfig()).Sync(context.Background(), root, localRoot)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Summary.TotalFiles)
	assert.Equal(t, 1, report.Summary.Successful)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.FileExists(t, filepath.Join(localRoot, "good.bin"))
	assert.NoFileExists(t, filepath.Join(localRoot, "bad.bin"))
}

func TestWalker_UnclassifiableItemSkippedWithoutFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore(t)
	root := &fakeDir{name: "root", children: []remote.Item{
		&opaqueItem{name: "mystery"},
		store.file("a.bin", windows('a')),
	}}

	localRoot := t.TempDir()
	report, err := NewWalker(testWalkerConfig()).Sync(context.Background(), root, localRoot)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.TotalFiles)
	assert.Zero(t, report.Summary.Failed)
}

func TestWalker_ListingErrorContainedToSubtree(t *testing.T) {
	t.Parallel()

	store := newFakeStore(t)
	root := &fakeDir{name: "root", children: []remote.Item{
		&fakeDir{name: "broken", err: os.ErrPermission},
		store.file("a.bin", windows('a')),
	}}

	localRoot := t.TempDir()
	report, err := NewWalker(testWalkerConfig()).Sync(context.Background(), root, localRoot)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.TotalFiles)
	assert.Equal(t, 1, report.Summary.Successful)
}

func TestWalker_FilterExcludesFiles(t *testing.T) {
	t.Parallel()

	store := newFakeStore(t)
	root := &fakeDir{name: "root", children: []remote.Item{
		store.file("keep.bin", windows('a')),
		store.file("skip.tmp", windows('b')),
	}}

	chain := filter.NewChain()
	require.NoError(t, chain.AddExclude("*.tmp"))

	cfg := testWalkerConfig()
	cfg.Filter = chain

	localRoot := t.TempDir()
	report, err := NewWalker(cfg).Sync(context.Background(), root, localRoot)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.TotalFiles)
	assert.NoFileExists(t, filepath.Join(localRoot, "skip.tmp"))
	assert.Equal(t, int64(1), cfg.Stats.Snapshot().FilesSkipped)
}

func TestWalker_DuplicateDispatchRunsOneSession(t *testing.T) {
	t.Parallel()

	store := newFakeStore(t)
	content := windows('a')
	first := store.file("dup.bin", content)
	second := store.file("dup.bin", content)

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	var opens atomic.Int32
	gate := func() {
		opens.Add(1)
		entered <- struct{}{}
		<-release
	}
	first.onOpen = gate
	second.onOpen = gate

	root := &fakeDir{name: "root", children: []remote.Item{first, second}}
	localRoot := t.TempDir()

	done := make(chan Report, 1)
	go func() {
		report, _ := NewWalker(testWalkerConfig()).Sync(context.Background(), root, localRoot)
		done <- report
	}()

	// One session reaches Open and holds the path; give the second
	// worker time to observe the active path and skip.
	<-entered
	time.Sleep(100 * time.Millisecond)
	close(release)

	select {
	case report := <-done:
		assert.Equal(t, 1, report.Summary.TotalFiles, "duplicate dispatch must not run a second session")
		assert.Equal(t, int32(1), opens.Load(), "only one session touches the remote file")
	case <-time.After(10 * time.Second):
		t.Fatal("walk did not complete")
	}
}

func TestWalker_DryRunWritesNothing(t *testing.T) {
	t.Parallel()

	store := newFakeStore(t)
	root := &fakeDir{name: "root", children: []remote.Item{
		&fakeDir{name: "sub", children: []remote.Item{
			store.file("sub/a.bin", windows('a')),
		}},
	}}

	cfg := testWalkerConfig()
	cfg.DryRun = true

	localRoot := t.TempDir()
	report, err := NewWalker(cfg).Sync(context.Background(), root, localRoot)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.TotalFiles)
	assert.NoFileExists(t, filepath.Join(localRoot, "sub"))
	assert.NoFileExists(t, filepath.Join(localRoot, ReportFilename))
}
