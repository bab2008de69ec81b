// Package vector provides nearest-neighbor search over L2-normalized float32
// vectors under the inner-product metric.
//
// Two backends implement [Index]: [Flat], an exact brute-force scan, and
// [HNSW], an approximate graph index. Both are built once from an ordered list
// of vectors (insertion order is slot order), are immutable afterwards, and are
// safe for concurrent Search. Backend choice is configuration; callers only see
// the [Index] interface.
package vector

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

// Index is a built, read-only vector index.
type Index interface {
	// Len returns the number of vectors (slots) in the index.
	Len() int

	// Dim returns the vector dimension.
	Dim() int

	// Search returns min(k, Len()) hits ordered by descending score, ties by
	// ascending slot. k <= 0 fails with ErrInvalidArgument.
	Search(query []float32, k int) ([]Hit, error)

	// Save serializes the index. Load(Save(idx)) is search-equivalent to idx.
	Save(w io.Writer) error
}

// Hit is one search result: the slot of a stored vector and its inner product
// with the query.
type Hit struct {
	Slot  int
	Score float32
}

var (
	// ErrInvalidArgument is returned for a non-positive k.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDimensionMismatch indicates two vectors have different dimensions.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Backend names.
const (
	BackendFlat = "flat"
	BackendHNSW = "hnsw"
)

// Dot computes the inner product of two vectors of equal length.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// NormalizeL2 returns a new vector normalized to unit L2 norm. The zero vector
// is returned unchanged (as a copy).
func NormalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	n := math.Sqrt(sum)
	if n == 0 {
		copy(out, v)
		return out
	}
	inv := 1.0 / n
	for i := range v {
		out[i] = float32(float64(v[i]) * inv)
	}
	return out
}

// before reports whether a ranks ahead of b: higher score first, then lower slot.
func before(a, b Hit) bool {
	if a.Score == b.Score {
		return a.Slot < b.Slot
	}
	return a.Score > b.Score
}

// sortHits orders hits by the search contract.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool { return before(hits[i], hits[j]) })
}

// clampK validates k and clamps it to n.
func clampK(k, n int) (int, error) {
	if k <= 0 {
		return 0, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	return min(k, n), nil
}

func checkDim(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, got, want)
	}
	return nil
}
