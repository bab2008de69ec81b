package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kamusis/assessrec/internal/catalog"
	"github.com/kamusis/assessrec/internal/embeddings"
	"github.com/kamusis/assessrec/internal/metadata"
	"github.com/kamusis/assessrec/internal/vector"
)

// BuildOptions controls index building.
type BuildOptions struct {
	// Backend is vector.BackendFlat (default) or vector.BackendHNSW.
	Backend string
	HNSW    vector.HNSWConfig

	BatchSize   int
	Concurrency int

	Logger *zap.Logger
}

// Build embeds every record and builds the vector index and metadata store
// in catalog order. Nothing is persisted; see Publish, which also fills in
// the manifest's file names and checksums.
func Build(ctx context.Context, prov embeddings.Provider, records []catalog.Record, opts BuildOptions) (*Bundle, error) {
	if len(records) == 0 {
		return nil, errors.New("catalog has no records")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		backend = vector.BackendFlat
	}
	if backend != vector.BackendFlat && backend != vector.BackendHNSW {
		return nil, fmt.Errorf("unsupported index backend: %s", opts.Backend)
	}

	prov = embeddings.Normalize(prov)
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = catalog.CombinedText(r)
	}

	started := time.Now()
	vecs, err := embeddings.EmbedAll(ctx, prov, texts, opts.BatchSize, opts.Concurrency)
	if err != nil {
		return nil, err
	}
	log.Info("embedded catalog",
		zap.Int("records", len(records)),
		zap.String("model", prov.ModelID()),
		zap.Duration("took", time.Since(started)),
	)

	var idx vector.Index
	switch backend {
	case vector.BackendHNSW:
		idx, err = vector.BuildHNSW(vecs, opts.HNSW)
	default:
		idx, err = vector.BuildFlat(vecs)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s index: %w", backend, err)
	}
	if idx.Dim() != prov.Dim() {
		return nil, fmt.Errorf("%w: provider dim %d, vectors dim %d", vector.ErrDimensionMismatch, prov.Dim(), idx.Dim())
	}

	manifest := Manifest{
		IndexVersion:       FormatVersion,
		CreatedAt:          time.Now().UTC().Format(time.RFC3339),
		ModelID:            prov.ModelID(),
		Dim:                idx.Dim(),
		Count:              idx.Len(),
		Normalize:          true,
		Backend:            backend,
		CatalogFingerprint: catalog.Fingerprint(records),
	}
	log.Info("built index",
		zap.String("backend", backend),
		zap.Int("count", manifest.Count),
		zap.Int("dim", manifest.Dim),
	)
	return &Bundle{Manifest: manifest, Index: idx, Store: metadata.New(records)}, nil
}
