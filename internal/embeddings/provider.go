package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kamusis/assessrec/internal/config"
)

// Provider embeds text into a fixed-length float vector.
//
// Implementations must be deterministic for the same input text and model, and
// EmbedBatch must return, for every text, exactly what Embed returns for it.
type Provider interface {
	ModelID() string
	Dim() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

var (
	// ErrEmbedding wraps any failure of an embeddings backend.
	ErrEmbedding = errors.New("embedding failed")

	// ErrEmptyInput is returned by remote backends for empty text.
	ErrEmptyInput = errors.New("cannot embed empty text")
)

// Supported provider names.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config contains the resolved embeddings configuration.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Dim      int
}

// LoadConfig resolves the embeddings section of the config file plus the API
// key of the selected provider, taken from the environment first and then
// ~/.assessrec/.env.
func LoadConfig(c config.EmbeddingsConfig) (*Config, error) {
	out := &Config{
		Provider: strings.ToLower(strings.TrimSpace(c.Provider)),
		Model:    c.Model,
		BaseURL:  c.BaseURL,
		Dim:      c.Dimensions,
	}
	var key string
	switch out.Provider {
	case ProviderOpenAI:
		key = config.KeyOpenAIAPIKey
	case ProviderGemini:
		key = config.KeyGeminiAPIKey
	default:
		return out, nil
	}
	apiKey, err := config.GetConfigValue(key)
	if err != nil {
		return nil, err
	}
	out.APIKey = strings.TrimSpace(apiKey)
	return out, nil
}

// NewFromConfig returns an L2-normalizing embeddings provider.
//
// The same configuration must be used to build an index and to query it.
func NewFromConfig(ctx context.Context, cfg *Config) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embeddings config is nil")
	}
	var (
		p   Provider
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderHash:
		p = NewHash(cfg.Dim)
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embeddings API key is not configured (set ASSESSREC_OPENAI_API_KEY)")
		}
		opts := []Option{WithModel(cfg.Model), WithDimension(cfg.Dim)}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		p = NewOpenAI(cfg.APIKey, opts...)
	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embeddings API key is not configured (set ASSESSREC_GEMINI_API_KEY)")
		}
		p, err = NewGemini(ctx, cfg.APIKey, WithModel(cfg.Model), WithDimension(cfg.Dim))
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported embeddings provider: %s", cfg.Provider)
	}
	return Normalize(p), nil
}
