package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		want string
		typ  Type
	}{
		{want: "SyncStarted", typ: SyncStarted},
		{want: "SyncComplete", typ: SyncComplete},
		{want: "ListingContents", typ: ListingContents},
		{want: "FileStarted", typ: FileStarted},
		{want: "FileProgress", typ: FileProgress},
		{want: "FileUnchanged", typ: FileUnchanged},
		{want: "FileCompleted", typ: FileCompleted},
		{want: "FileFailed", typ: FileFailed},
		{want: "FileSkipped", typ: FileSkipped},
		{want: "DirCreated", typ: DirCreated},
		{want: "InvalidStaging", typ: InvalidStaging},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}

func TestTypeStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Type(999).String())
	assert.Equal(t, "unknown", Type(999).LogName())
}

func TestLogNames(t *testing.T) {
	assert.Equal(t, "file_unchanged", FileUnchanged.LogName())
	assert.Equal(t, "download_success", FileCompleted.LogName())
	assert.Equal(t, "download_failed", FileFailed.LogName())
	assert.Equal(t, "invalid_temp_file", InvalidStaging.LogName())
	assert.Equal(t, "listing_contents", ListingContents.LogName())
}

func TestEventZeroValue(t *testing.T) {
	var e Event
	assert.Equal(t, Type(0), e.Type)
	assert.True(t, e.Timestamp.IsZero())
	assert.Empty(t, e.Path)
	assert.Zero(t, e.Bytes)
	assert.Zero(t, e.Ranges)
	require.NoError(t, e.Error)
}

func TestEventFields(t *testing.T) {
	now := time.Now()
	e := Event{
		Type:      FileCompleted,
		Timestamp: now,
		Path:      "dir/file.txt",
		File:      "file.txt",
		Bytes:     1024,
		Ranges:    2,
	}
	assert.Equal(t, FileCompleted, e.Type)
	assert.Equal(t, now, e.Timestamp)
	assert.Equal(t, "dir/file.txt", e.Path)
	assert.Equal(t, int64(1024), e.Bytes)
	assert.Equal(t, 2, e.Ranges)
}
