package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	SyncStarted Type = iota + 1
	SyncComplete
	ListingContents
	FileStarted
	FileProgress
	FileUnchanged
	FileCompleted
	FileFailed
	FileSkipped
	DirCreated
	InvalidStaging
)

var typeNames = [...]string{
	SyncStarted:     "SyncStarted",
	SyncComplete:    "SyncComplete",
	ListingContents: "ListingContents",
	FileStarted:     "FileStarted",
	FileProgress:    "FileProgress",
	FileUnchanged:   "FileUnchanged",
	FileCompleted:   "FileCompleted",
	FileFailed:      "FileFailed",
	FileSkipped:     "FileSkipped",
	DirCreated:      "DirCreated",
	InvalidStaging:  "InvalidStaging",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

var logNames = [...]string{
	SyncStarted:     "download_started",
	SyncComplete:    "download_completed",
	ListingContents: "listing_contents",
	FileStarted:     "file_download_started",
	FileProgress:    "file_progress",
	FileUnchanged:   "file_unchanged",
	FileCompleted:   "download_success",
	FileFailed:      "download_failed",
	FileSkipped:     "file_skipped",
	DirCreated:      "directory_created",
	InvalidStaging:  "invalid_temp_file",
}

// LogName returns the flat event name used in structured log records.
func (t Type) LogName() string {
	if int(t) < len(logNames) {
		return logNames[t]
	}
	return "unknown"
}

// Event represents a single progress event from the sync engine.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // destination path relative to the local root
	File      string // remote item name
	Bytes     int64  // bytes transferred (or bytes-so-far for FileProgress)
	Ranges    int    // changed ranges for this file
	Error     error
}
