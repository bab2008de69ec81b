package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	geminiDefaultModel = "gemini-embedding-001"
	geminiDefaultDim   = 768
	geminiMaxBatch     = 100
)

type geminiProvider struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGemini constructs a Gemini API embeddings provider.
func NewGemini(ctx context.Context, apiKey string, opts ...Option) (Provider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	o := options{model: geminiDefaultModel, dim: geminiDefaultDim}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &geminiProvider{client: client, model: o.model, dim: o.dim}, nil
}

func (p *geminiProvider) ModelID() string {
	return fmt.Sprintf("gemini:%s@%d", p.model, p.dim)
}

func (p *geminiProvider) Dim() int {
	return p.dim
}

func (p *geminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *geminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += geminiMaxBatch {
		end := min(i+geminiMaxBatch, len(texts))
		vecs, err := p.call(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("%w: gemini batch [%d:%d]: %w", ErrEmbedding, i, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *geminiProvider) call(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ErrEmptyInput
		}
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	dim := int32(p.dim)
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) != p.dim {
			return nil, fmt.Errorf("embedding %d has unexpected dimension", i)
		}
		vecs[i] = e.Values
	}
	return vecs, nil
}
