// Package storage abstracts where index artifacts live: a local directory or
// an S3-compatible bucket. Paths are forward-slash separated and relative to
// the store root.
package storage

import (
	"context"
	"io"
)

// FileStore reads and writes whole artifact files.
//
// Implementations must be safe for concurrent use. A missing file is reported
// by Read as an error wrapping os.ErrNotExist.
type FileStore interface {
	// Read opens the named file. The caller closes the reader.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing. Data becomes visible only
	// after a successful Close; a failed or abandoned write leaves any
	// previous content in place.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Location describes the store root for logs and diagnostics.
	Location() string
}

// Aborter is implemented by writers returned from FileStore.Write. Abort
// discards the pending content instead of committing it.
type Aborter interface {
	Abort() error
}

// Abort discards w if it supports it and closes it otherwise.
func Abort(w io.WriteCloser) error {
	if a, ok := w.(Aborter); ok {
		return a.Abort()
	}
	return w.Close()
}
