package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kamusis/assessrec/internal/storage"
)

// Publish writes the bundle to fs under file names unique to this publish,
// then writes the manifest that points at them. The manifest is the commit
// point: until it lands, readers keep loading the previous manifest and the
// files it names, which a publish never overwrites. On success b.Manifest
// carries the file names and checksums that were written.
func Publish(ctx context.Context, fs storage.FileStore, b *Bundle) error {
	m := b.Manifest
	if m.Dim <= 0 {
		return fmt.Errorf("invalid dim: %d", m.Dim)
	}
	if m.Count != b.Index.Len() || m.Count != b.Store.Len() {
		return fmt.Errorf("count mismatch: manifest %d, index %d, metadata %d", m.Count, b.Index.Len(), b.Store.Len())
	}

	id := uuid.NewString()
	m.VectorFile = VectorFileName(id, m.Backend)
	m.MetadataFile = MetadataFileName(id)

	var err error
	if m.VectorSHA256, err = writeTo(ctx, fs, m.VectorFile, b.Index.Save); err != nil {
		return fmt.Errorf("cannot write vectors: %w", err)
	}
	if m.MetadataSHA256, err = writeTo(ctx, fs, m.MetadataFile, b.Store.Write); err != nil {
		return fmt.Errorf("cannot write metadata: %w", err)
	}

	mb, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	_, err = writeTo(ctx, fs, ManifestFile, func(w io.Writer) error {
		_, err := w.Write(mb)
		return err
	})
	if err != nil {
		return fmt.Errorf("cannot write manifest: %w", err)
	}
	b.Manifest = m
	return nil
}

// PublishDir publishes into a sibling staging directory and swaps it into
// place, so dir always holds either the previous or the new index.
func PublishDir(ctx context.Context, dir string, b *Bundle) error {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("cannot create index parent dir: %w", err)
	}
	staging, err := os.MkdirTemp(filepath.Dir(dir), "."+filepath.Base(dir)+".staging-*")
	if err != nil {
		return fmt.Errorf("cannot create staging dir: %w", err)
	}
	fs, err := storage.NewLocal(staging)
	if err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	if err := Publish(ctx, fs, b); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	if err := os.Chmod(staging, 0o755); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	if err := AtomicSwap(staging, dir); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("cannot swap index into place: %w", err)
	}
	return nil
}

// writeTo writes path through fn and returns the hex sha256 of what was
// written.
func writeTo(ctx context.Context, fs storage.FileStore, path string, fn func(io.Writer) error) (string, error) {
	w, err := fs.Write(ctx, path)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	if err := fn(io.MultiWriter(w, h)); err != nil {
		_ = storage.Abort(w)
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// AtomicSwap replaces destDir with srcDir by renaming.
func AtomicSwap(srcDir, destDir string) error {
	parent := filepath.Dir(destDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	backup := destDir + ".bak"
	_ = os.RemoveAll(backup)
	if _, err := os.Stat(destDir); err == nil {
		if err := os.Rename(destDir, backup); err != nil {
			return err
		}
	}
	if err := os.Rename(srcDir, destDir); err != nil {
		// rollback best-effort
		if _, stErr := os.Stat(backup); stErr == nil {
			_ = os.Rename(backup, destDir)
		}
		return err
	}
	_ = os.RemoveAll(backup)
	return nil
}
