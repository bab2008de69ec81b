package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/assessrec/internal/config"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// countingProvider wraps Hash and counts texts sent to EmbedBatch.
type countingProvider struct {
	*Hash
	mu    sync.Mutex
	texts int
	calls int
	fail  error
}

func (c *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls++
	c.texts += len(texts)
	c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	return c.Hash.EmbedBatch(ctx, texts)
}

func TestHash(t *testing.T) {
	ctx := context.Background()
	h := NewHash(0)
	assert.Equal(t, DefaultHashDim, h.Dim())
	assert.Equal(t, "hash:fnv1a-384", h.ModelID())

	t.Run("Deterministic", func(t *testing.T) {
		a, err := h.Embed(ctx, "Java developer with SQL")
		require.NoError(t, err)
		b, err := NewHash(0).Embed(ctx, "Java developer with SQL")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("CaseAndPunctuationInsensitive", func(t *testing.T) {
		a, _ := h.Embed(ctx, "JAVA, Developer!")
		b, _ := h.Embed(ctx, "java developer")
		assert.Equal(t, a, b)
	})

	t.Run("BatchMatchesSingle", func(t *testing.T) {
		texts := []string{"python", "team lead", "", "numerical reasoning"}
		batch, err := h.EmbedBatch(ctx, texts)
		require.NoError(t, err)
		require.Len(t, batch, len(texts))
		for i, text := range texts {
			single, _ := h.Embed(ctx, text)
			assert.Equal(t, single, batch[i])
		}
	})

	t.Run("EmptyTextIsZero", func(t *testing.T) {
		v, err := h.Embed(ctx, "  ")
		require.NoError(t, err)
		assert.Zero(t, norm(v))
	})
}

func TestNormalize(t *testing.T) {
	ctx := context.Background()
	p := Normalize(NewHash(64))
	assert.Same(t, p.(normalized).Provider, Normalize(p).(normalized).Provider)

	v, err := p.Embed(ctx, "verbal reasoning test for graduates")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, norm(v), 1e-5)

	vecs, err := p.EmbedBatch(ctx, []string{"a b c", ""})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, norm(vecs[0]), 1e-5)
	assert.Zero(t, norm(vecs[1]))
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	p, err := NewFromConfig(ctx, &Config{Dim: 32})
	require.NoError(t, err)
	assert.Equal(t, "hash:fnv1a-32", p.ModelID())

	_, err = NewFromConfig(ctx, &Config{Provider: "openai"})
	assert.ErrorContains(t, err, "ASSESSREC_OPENAI_API_KEY")

	_, err = NewFromConfig(ctx, &Config{Provider: "gemini"})
	assert.ErrorContains(t, err, "ASSESSREC_GEMINI_API_KEY")

	_, err = NewFromConfig(ctx, &Config{Provider: "word2vec"})
	assert.ErrorContains(t, err, "unsupported")

	_, err = NewFromConfig(ctx, nil)
	assert.Error(t, err)
}

func TestEmbedAll(t *testing.T) {
	ctx := context.Background()
	texts := make([]string, 23)
	for i := range texts {
		texts[i] = string(rune('a'+i)) + " assessment"
	}

	cp := &countingProvider{Hash: NewHash(16)}
	got, err := EmbedAll(ctx, cp, texts, 5, 3)
	require.NoError(t, err)
	require.Len(t, got, len(texts))
	assert.Equal(t, 5, cp.calls)
	for i, text := range texts {
		want, _ := cp.Hash.Embed(ctx, text)
		assert.Equal(t, want, got[i], "text %d out of order", i)
	}

	boom := errors.New("boom")
	_, err = EmbedAll(ctx, &countingProvider{Hash: NewHash(16), fail: boom}, texts, 5, 2)
	assert.ErrorIs(t, err, boom)
}

func TestCachedProvider(t *testing.T) {
	ctx := context.Background()
	cache, err := OpenBadgerCache(BadgerCacheOptions{InMemory: true})
	require.NoError(t, err)
	defer cache.Close()

	cp := &countingProvider{Hash: NewHash(16)}
	p := NewCached(cp, cache)

	first, err := p.EmbedBatch(ctx, []string{"java", "python"})
	require.NoError(t, err)
	assert.Equal(t, 2, cp.texts)

	second, err := p.EmbedBatch(ctx, []string{"python", "go", "java"})
	require.NoError(t, err)
	assert.Equal(t, 3, cp.texts, "only the new text should reach the provider")
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])

	v, ok, err := cache.Get(ctx, CacheKey(cp.ModelID(), "go"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, second[1], v)

	_, ok, err = cache.Get(ctx, CacheKey("other-model", "go"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCachedKeepsNormalizeOutermost(t *testing.T) {
	ctx := context.Background()
	cache, err := OpenBadgerCache(BadgerCacheOptions{InMemory: true})
	require.NoError(t, err)
	defer cache.Close()

	p := NewCached(Normalize(NewHash(32)), cache)
	n, ok := p.(normalized)
	require.True(t, ok, "normalizing wrapper should stay outermost")
	_, ok = n.Provider.(*cached)
	require.True(t, ok)
	assert.Equal(t, p, Normalize(p))

	want, err := Normalize(NewHash(32)).Embed(ctx, "java developer")
	require.NoError(t, err)
	for range 2 {
		got, err := Normalize(p).Embed(ctx, "java developer")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestOpenAIProvider(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model      string   `json:"model"`
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body.Model)
		assert.Equal(t, 3, body.Dimensions)

		// Answer out of order; the provider must re-order by index.
		data := make([]map[string]any, 0, len(body.Input))
		for i := len(body.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i + 1), 0, 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  body.Model,
			"data":   data,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	p := NewOpenAI("sk-test", WithBaseURL(srv.URL+"/v1"), WithDimension(3), WithHTTPClient(srv.Client()))
	assert.Equal(t, "openai:text-embedding-3-small@3", p.ModelID())

	vecs, err := p.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {2, 0, 0}}, vecs)

	_, err = p.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, int32(1), requests.Load())
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ASSESSREC_OPENAI_API_KEY", " sk-env ")

	cfg, err := LoadConfig(config.EmbeddingsConfig{Provider: "OpenAI", Model: "text-embedding-3-large", Dimensions: 256})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "sk-env", cfg.APIKey)
	assert.Equal(t, 256, cfg.Dim)

	cfg, err = LoadConfig(config.EmbeddingsConfig{Provider: "hash"})
	require.NoError(t, err)
	assert.Empty(t, cfg.APIKey)
}
