package source

import (
	"context"
	"io/fs"
	"mime"
	"os"
	"path"

	"github.com/cockroachdb/errors"
)

// Filesystem serves media bytes from a directory. Keys are slash separated paths relative to the
// directory and cannot escape it.
type Filesystem struct {
	root *os.Root
}

// NewFilesystem opens dir as a byte source.
func NewFilesystem(dir string) (*Filesystem, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open media root %q", dir)
	}

	return &Filesystem{root: root}, nil
}

// Open implements [ByteSource].
func (s *Filesystem) Open(_ context.Context, key string) (Stream, error) {
	if !fs.ValidPath(key) || key == "." {
		return Stream{}, errors.Wrapf(ErrNotFound, "invalid key %q", key)
	}

	f, err := s.root.Open(key)
	if errors.Is(err, fs.ErrNotExist) {
		return Stream{}, errors.Wrapf(ErrNotFound, "file %q", key)
	} else if err != nil {
		return Stream{}, errors.Wrapf(err, "open %q", key)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return Stream{}, errors.Wrapf(err, "stat %q", key)
	}

	if fi.IsDir() {
		f.Close()
		return Stream{}, errors.Wrapf(ErrNotFound, "%q is a directory", key)
	}

	ctype := mime.TypeByExtension(path.Ext(key))
	if ctype == "" {
		ctype = defaultMIME
	}

	return Stream{Body: f, MIME: ctype, Size: fi.Size()}, nil
}

// Close releases the directory.
func (s *Filesystem) Close() error { return s.root.Close() }
