package vector

import (
	"errors"
	"fmt"
)

// Flat is an exact index: every search scans all vectors.
type Flat struct {
	dim  int
	n    int
	data []float32 // n*dim values, slot i at data[i*dim:(i+1)*dim]
}

var _ Index = (*Flat)(nil)

// BuildFlat builds an exact index over vectors. Slot i holds vectors[i].
func BuildFlat(vectors [][]float32) (*Flat, error) {
	if len(vectors) == 0 {
		return nil, errors.New("cannot build an index from zero vectors")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("cannot build an index from zero-length vectors")
	}
	data := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if err := checkDim(len(v), dim); err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		data = append(data, v...)
	}
	return &Flat{dim: dim, n: len(vectors), data: data}, nil
}

func (f *Flat) Len() int { return f.n }

func (f *Flat) Dim() int { return f.dim }

// Vector returns a copy of the vector stored in slot.
func (f *Flat) Vector(slot int) []float32 {
	out := make([]float32, f.dim)
	copy(out, f.data[slot*f.dim:(slot+1)*f.dim])
	return out
}

func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	k, err := clampK(k, f.n)
	if err != nil {
		return nil, err
	}
	if err := checkDim(len(query), f.dim); err != nil {
		return nil, err
	}

	hits := make([]Hit, f.n)
	for i := 0; i < f.n; i++ {
		hits[i] = Hit{Slot: i, Score: Dot(query, f.data[i*f.dim:(i+1)*f.dim])}
	}
	sortHits(hits)
	return hits[:k], nil
}
