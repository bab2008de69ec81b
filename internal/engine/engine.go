// Package engine answers free-text queries with ranked catalog assessments.
//
// An Engine loads its embedder and index bundle lazily on first use. The load
// happens once; a failure is sticky and every later call reports
// ErrEngineUnavailable until the process restarts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kamusis/assessrec/internal/embeddings"
	"github.com/kamusis/assessrec/internal/index"
	"github.com/kamusis/assessrec/internal/metadata"
	"github.com/kamusis/assessrec/internal/storage"
	"github.com/kamusis/assessrec/internal/vector"
)

// ErrEngineUnavailable is returned by every call after initialization failed.
var ErrEngineUnavailable = errors.New("recommendation engine unavailable")

// State is the lifecycle state of an Engine.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// Options configures New.
type Options struct {
	// Store is where the published index lives.
	Store storage.FileStore

	// NewProvider constructs the query embedder. It must produce the same
	// model the index was built with.
	NewProvider func(ctx context.Context) (embeddings.Provider, error)

	Logger *zap.Logger
}

type resources struct {
	provider embeddings.Provider
	bundle   *index.Bundle
}

// Engine is safe for concurrent use.
type Engine struct {
	opts Options
	log  *zap.Logger

	ready atomic.Pointer[resources]

	mu      sync.Mutex
	done    bool
	initErr error
}

// New returns an uninitialized engine. Nothing is loaded until the first
// Warm or Recommend.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{opts: opts, log: log.Named("engine")}
}

// State reports the current lifecycle state without triggering initialization.
func (e *Engine) State() State {
	if e.ready.Load() != nil {
		return StateReady
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return StateFailed
	}
	return StateUninitialized
}

// Manifest returns the loaded index manifest, if the engine is ready.
func (e *Engine) Manifest() (index.Manifest, bool) {
	r := e.ready.Load()
	if r == nil {
		return index.Manifest{}, false
	}
	return r.bundle.Manifest, true
}

// Warm initializes the engine if it has not been initialized yet.
func (e *Engine) Warm(ctx context.Context) error {
	_, err := e.resources(ctx)
	return err
}

func (e *Engine) resources(ctx context.Context) (*resources, error) {
	if r := e.ready.Load(); r != nil {
		return r, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.ready.Load(); r != nil {
		return r, nil
	}
	if !e.done {
		e.done = true
		// Init outlives the request that happened to trigger it.
		r, err := e.init(context.WithoutCancel(ctx))
		if err != nil {
			e.initErr = err
			e.log.Error("initialization failed", zap.Error(err))
		} else {
			e.ready.Store(r)
		}
	}
	if e.initErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, e.initErr)
	}
	return e.ready.Load(), nil
}

func (e *Engine) init(ctx context.Context) (*resources, error) {
	started := time.Now()
	if e.opts.Store == nil {
		return nil, errors.New("no index store configured")
	}
	if e.opts.NewProvider == nil {
		return nil, errors.New("no embeddings provider configured")
	}

	prov, err := e.opts.NewProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("create embeddings provider: %w", err)
	}
	prov = embeddings.Normalize(prov)

	bundle, err := index.Load(ctx, e.opts.Store)
	if err != nil {
		return nil, fmt.Errorf("load index from %s: %w", e.opts.Store.Location(), err)
	}
	m := bundle.Manifest
	if m.ModelID != prov.ModelID() {
		return nil, fmt.Errorf("index was built with model %q but the configured model is %q", m.ModelID, prov.ModelID())
	}
	if m.Dim != prov.Dim() {
		return nil, fmt.Errorf("%w: index dim %d, provider dim %d", vector.ErrDimensionMismatch, m.Dim, prov.Dim())
	}

	e.log.Info("engine ready",
		zap.String("location", e.opts.Store.Location()),
		zap.String("model", m.ModelID),
		zap.String("backend", m.Backend),
		zap.Int("count", m.Count),
		zap.Duration("took", time.Since(started)),
	)
	return &resources{provider: prov, bundle: bundle}, nil
}

// Recommend returns up to topK assessments for query, best match first.
// topK <= 0 fails with vector.ErrInvalidArgument; larger values are clamped
// to the catalog size. The query is not validated here.
func (e *Engine) Recommend(ctx context.Context, query string, topK int) ([]Result, error) {
	r, err := e.resources(ctx)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", vector.ErrInvalidArgument, topK)
	}

	q, err := r.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.bundle.Index.Search(q, topK)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		rec, err := r.bundle.Store.Get(h.Slot)
		if err != nil {
			if errors.Is(err, metadata.ErrIndexOutOfRange) {
				return nil, fmt.Errorf("%w: %v", index.ErrCorruptIndex, err)
			}
			return nil, err
		}
		out = append(out, newResult(h.Score, rec))
	}
	return out, nil
}
