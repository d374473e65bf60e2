// Package source provides the media items and media bytes served by the media API.
package source

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned when an item or byte stream does not exist.
var ErrNotFound = errors.New("source: not found")

// Item describes one media item in a library.
type Item struct {
	ID    string    `json:"id" yaml:"id"`
	Title string    `json:"title" yaml:"title"`
	Kind  string    `json:"kind" yaml:"kind"`
	MIME  string    `json:"mime" yaml:"mime"`
	Size  int64     `json:"size" yaml:"size"`
	Key   string    `json:"key" yaml:"key"`
	Tags  []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	Added time.Time `json:"added" yaml:"added"`
}

// Query filters the items returned by [Library.List].
type Query struct {
	// Kind only returns items of this kind when set.
	Kind string
	// Limit caps the number of items, zero means no limit.
	Limit int
}

// Library lists and looks up media items.
type Library interface {
	List(ctx context.Context, q Query) ([]Item, error)
	Get(ctx context.Context, id string) (Item, error)
}

// Stream is an opened media byte stream. Size is -1 when unknown. The caller must close Body.
type Stream struct {
	Body io.ReadCloser
	MIME string
	Size int64
}

// ByteSource opens the bytes of a media item by its key.
type ByteSource interface {
	Open(ctx context.Context, key string) (Stream, error)
}

const defaultMIME = "application/octet-stream"

func limit(items []Item, n int) []Item {
	if n > 0 && len(items) > n {
		return items[:n]
	}

	return items
}
