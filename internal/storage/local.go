package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores files under a directory on disk.
type Local struct {
	root string
}

var _ FileStore = (*Local)(nil)

// NewLocal returns a store rooted at dir. The directory is not created until
// the first write.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

// Dir returns the absolute root directory.
func (l *Local) Dir() string {
	return l.root
}

func (l *Local) Location() string {
	return l.root
}

func (l *Local) resolve(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(path))
}

func (l *Local) Read(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(l.resolve(path))
}

// Write writes to a temp file next to the target and renames it into place
// on Close.
func (l *Local) Write(_ context.Context, path string) (io.WriteCloser, error) {
	full := l.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &localWriter{f: tmp, dest: full}, nil
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.resolve(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

type localWriter struct {
	f      *os.File
	dest   string
	failed bool
}

func (w *localWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		w.failed = true
	}
	return n, err
}

// Abort discards everything written so far.
func (w *localWriter) Abort() error {
	w.failed = true
	return w.Close()
}

func (w *localWriter) Close() error {
	if w.f == nil {
		return nil
	}
	defer func() { w.f = nil }()
	tmp := w.f.Name()
	if err := w.f.Close(); err != nil || w.failed {
		_ = os.Remove(tmp)
		if err == nil {
			err = errors.New("write to " + w.dest + " aborted")
		}
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, w.dest); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
