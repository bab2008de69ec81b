package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kamusis/assessrec/internal/metadata"
	"github.com/kamusis/assessrec/internal/storage"
	"github.com/kamusis/assessrec/internal/vector"
)

// ReadManifest reads only the manifest at fs.
func ReadManifest(ctx context.Context, fs storage.FileStore) (Manifest, error) {
	var m Manifest
	r, err := fs.Read(ctx, ManifestFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, fmt.Errorf("%w: no %s in %s", ErrNotBuilt, ManifestFile, fs.Location())
		}
		return m, fmt.Errorf("cannot read manifest: %w", err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return m, fmt.Errorf("cannot read manifest: %w", err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%w: invalid manifest JSON: %v", ErrCorruptIndex, err)
	}
	if m.IndexVersion != FormatVersion {
		return m, fmt.Errorf("%w: unsupported index version %d", ErrCorruptIndex, m.IndexVersion)
	}
	if m.Dim <= 0 {
		return m, fmt.Errorf("%w: invalid dim in manifest: %d", ErrCorruptIndex, m.Dim)
	}
	if m.Count <= 0 {
		return m, fmt.Errorf("%w: invalid count in manifest: %d", ErrCorruptIndex, m.Count)
	}
	for _, name := range []string{m.VectorFile, m.MetadataFile} {
		if name == "" || strings.ContainsAny(name, `/\`) {
			return m, fmt.Errorf("%w: invalid artifact name %q in manifest", ErrCorruptIndex, name)
		}
	}
	if m.VectorSHA256 == "" || m.MetadataSHA256 == "" {
		return m, fmt.Errorf("%w: manifest has no artifact checksums", ErrCorruptIndex)
	}
	return m, nil
}

// Load reads a published bundle from fs and checks that the manifest, the
// vector index and the metadata agree on count, dimension and checksums. Any
// disagreement or parse failure is reported as ErrCorruptIndex.
func Load(ctx context.Context, fs storage.FileStore) (*Bundle, error) {
	m, err := ReadManifest(ctx, fs)
	if err != nil {
		return nil, err
	}

	idx, err := loadVectors(ctx, fs, m)
	if err != nil {
		return nil, err
	}
	store, err := loadMetadata(ctx, fs, m)
	if err != nil {
		return nil, err
	}

	if idx.Dim() != m.Dim {
		return nil, fmt.Errorf("%w: vector dim %d, manifest dim %d", ErrCorruptIndex, idx.Dim(), m.Dim)
	}
	if idx.Len() != store.Len() {
		return nil, fmt.Errorf("%w: %d vectors but %d metadata records", ErrCorruptIndex, idx.Len(), store.Len())
	}
	if m.Count != idx.Len() {
		return nil, fmt.Errorf("%w: manifest count %d, index holds %d", ErrCorruptIndex, m.Count, idx.Len())
	}
	return &Bundle{Manifest: m, Index: idx, Store: store}, nil
}

func loadVectors(ctx context.Context, fs storage.FileStore, m Manifest) (vector.Index, error) {
	var idx vector.Index
	err := readVerified(ctx, fs, m.VectorFile, m.VectorSHA256, func(r io.Reader) (err error) {
		idx, err = vector.LoadShape(r, vector.Shape{Dim: m.Dim, Count: m.Count})
		return err
	})
	return idx, err
}

func loadMetadata(ctx context.Context, fs storage.FileStore, m Manifest) (*metadata.Store, error) {
	var store *metadata.Store
	err := readVerified(ctx, fs, m.MetadataFile, m.MetadataSHA256, func(r io.Reader) (err error) {
		store, err = metadata.Read(r)
		return err
	})
	return store, err
}

// readVerified decodes path with fn and checks the file's sha256 against
// want. A missing file, a decode error or a checksum mismatch is
// ErrCorruptIndex.
func readVerified(ctx context.Context, fs storage.FileStore, path, want string, fn func(io.Reader) error) error {
	r, err := fs.Read(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: cannot open %s: %v", ErrCorruptIndex, path, err)
	}
	defer r.Close()

	h := sha256.New()
	tr := io.TeeReader(r, h)
	if err := fn(tr); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptIndex, path, err)
	}
	if _, err := io.Copy(io.Discard, tr); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptIndex, path, err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != want {
		return fmt.Errorf("%w: %s checksum %s, manifest has %s", ErrCorruptIndex, path, got, want)
	}
	return nil
}
