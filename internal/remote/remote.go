// Package remote defines the navigable item model the sync engine walks.
// Implementations resolve paths against a remote hierarchical store; the
// engine never authenticates or retries metadata calls itself.
package remote

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound reports that a remote path resolved to nothing.
var ErrNotFound = errors.New("remote: item not found")

// Item is a navigable entry in the remote store. Every Item is either a
// File or a Dir; the engine resolves the variant once with a type switch
// when the item is first encountered.
type Item interface {
	Name() string
}

// File is a file-like item: it has a declared size and an openable byte
// stream.
type File interface {
	Item
	Size() int64
	Open(ctx context.Context) (*Response, error)
}

// Dir is a directory-like item with enumerable children.
type Dir interface {
	Item
	Children(ctx context.Context) ([]Item, error)
}

// Response is an open streaming handle for a File.
//
// Body is rewindable so the diff pass can scan the content and hand the
// cursor back for the transfer. URL is stable for the lifetime of the
// response and accepts byte-range requests against the same content.
type Response struct {
	Size int64
	URL  string
	Body io.ReadSeekCloser
}

// Close releases the response body.
func (r *Response) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}
