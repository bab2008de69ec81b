package embeddings

import (
	"context"
	"fmt"

	"github.com/kamusis/assessrec/internal/vector"
)

type normalized struct {
	Provider
}

// Normalize wraps p so every returned vector has unit L2 norm. The zero vector
// stays zero. Wrapping an already normalizing provider returns it unchanged.
func Normalize(p Provider) Provider {
	if _, ok := p.(normalized); ok {
		return p
	}
	return normalized{Provider: p}
}

func (n normalized) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := n.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(v) != n.Dim() {
		return nil, fmt.Errorf("%w: %s returned dimension %d, want %d", ErrEmbedding, n.ModelID(), len(v), n.Dim())
	}
	return vector.NormalizeL2(v), nil
}

func (n normalized) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := n.Provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", ErrEmbedding, n.ModelID(), len(vecs), len(texts))
	}
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		if len(v) != n.Dim() {
			return nil, fmt.Errorf("%w: %s returned dimension %d, want %d", ErrEmbedding, n.ModelID(), len(v), n.Dim())
		}
		out[i] = vector.NormalizeL2(v)
	}
	return out, nil
}
