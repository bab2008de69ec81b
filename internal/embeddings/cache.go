package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Cache stores embedding vectors by key. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	PutMany(ctx context.Context, entries map[string][]float32) error
	Close() error
}

// CacheKey derives the cache key for text under a model. Vectors from
// different models never share a key.
func CacheKey(modelID, text string) string {
	sum := sha256.Sum256([]byte(text))
	return modelID + "/" + hex.EncodeToString(sum[:])
}

type cached struct {
	Provider
	cache Cache
}

// NewCached wraps p so vectors already in c are not requested again. Cache
// read or write failures are ignored; the provider result is authoritative.
// A normalizing p stays outermost, so the cache holds raw provider vectors
// and callers that normalize again get p's wrapper back unchanged.
func NewCached(p Provider, c Cache) Provider {
	if c == nil {
		return p
	}
	if n, ok := p.(normalized); ok {
		return Normalize(NewCached(n.Provider, c))
	}
	return &cached{Provider: p, cache: c}
}

func (c *cached) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	model := c.ModelID()

	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok, err := c.cache.Get(ctx, CacheKey(model, t)); err == nil && ok && len(v) == c.Dim() {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.Provider.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", ErrEmbedding, model, len(vecs), len(missTexts))
	}
	fresh := make(map[string][]float32, len(vecs))
	for j, v := range vecs {
		out[missIdx[j]] = v
		fresh[CacheKey(model, missTexts[j])] = v
	}
	_ = c.cache.PutMany(ctx, fresh)
	return out, nil
}

// BadgerCacheOptions configures OpenBadgerCache.
type BadgerCacheOptions struct {
	// Dir holds the database files. Required unless InMemory is set.
	Dir string

	// InMemory keeps everything in memory (tests).
	InMemory bool

	// Logger receives badger's internal log lines. Nil discards them.
	Logger *zap.Logger
}

// BadgerCache is a persistent Cache backed by BadgerDB with msgpack values.
type BadgerCache struct {
	db *badger.DB
}

var _ Cache = (*BadgerCache)(nil)

type cacheEntry struct {
	Vector []float32 `msgpack:"v"`
}

// OpenBadgerCache opens (or creates) an embedding cache.
func OpenBadgerCache(opts BadgerCacheOptions) (*BadgerCache, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("embedding cache dir is required")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger.Named("badger").Sugar()})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

func (b *BadgerCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var e cacheEntry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("decode cached embedding: %w", err)
	}
	return e.Vector, true, nil
}

func (b *BadgerCache) PutMany(_ context.Context, entries map[string][]float32) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for k, v := range entries {
		raw, err := msgpack.Marshal(cacheEntry{Vector: v})
		if err != nil {
			return err
		}
		if err := wb.Set([]byte(k), raw); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *BadgerCache) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger logs through zap.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}
