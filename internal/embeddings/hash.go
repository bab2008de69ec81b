package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultHashDim is the vector size of the hashed-token provider.
const DefaultHashDim = 384

// Hash embeds text by signed feature hashing of case-folded word tokens. It is
// lexical, not semantic, and runs fully offline.
type Hash struct {
	dim int
}

var _ Provider = (*Hash)(nil)

// NewHash returns a hashed-token provider. dim <= 0 selects DefaultHashDim.
func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = DefaultHashDim
	}
	return &Hash{dim: dim}
}

func (h *Hash) ModelID() string {
	return fmt.Sprintf("hash:fnv1a-%d", h.dim)
}

func (h *Hash) Dim() int {
	return h.dim
}

// Embed returns the raw (unnormalized) token-count vector for text. Empty text
// yields the zero vector.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, h.dim)
	for _, tok := range h.tokenize(text) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		if sum>>63 == 1 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	return v, nil
}

func (h *Hash) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// tokenize splits text into case-folded runs of letters and digits.
func (h *Hash) tokenize(text string) []string {
	// A Caser is stateful and not safe for concurrent use.
	folded := cases.Fold().String(norm.NFC.String(text))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
