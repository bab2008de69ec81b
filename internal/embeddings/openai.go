package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	openAIDefaultModel = "text-embedding-3-small"
	openAIDefaultDim   = 1536
	openAIMaxBatch     = 2048
)

type openAIProvider struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAI constructs an OpenAI embeddings provider. Any OpenAI-compatible
// server works through WithBaseURL.
func NewOpenAI(apiKey string, opts ...Option) Provider {
	o := options{
		model:      openAIDefaultModel,
		dim:        openAIDefaultDim,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(o.httpClient),
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(strings.TrimRight(o.baseURL, "/")+"/"))
	}
	client := openai.NewClient(clientOpts...)

	return &openAIProvider{client: &client, model: o.model, dim: o.dim}
}

func (p *openAIProvider) ModelID() string {
	return fmt.Sprintf("openai:%s@%d", p.model, p.dim)
}

func (p *openAIProvider) Dim() int {
	return p.dim
}

func (p *openAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch splits inputs larger than the API limit into several requests.
func (p *openAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: %w", ErrEmbedding, ErrEmptyInput)
		}
	}

	out := make([][]float32, len(texts))
	for i := 0; i < len(texts); i += openAIMaxBatch {
		end := min(i+openAIMaxBatch, len(texts))
		vecs, err := p.call(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("%w: openai batch [%d:%d]: %w", ErrEmbedding, i, end, err)
		}
		copy(out[i:], vecs)
	}
	return out, nil
}

func (p *openAIProvider) call(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(p.model),
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     openai.Int(int64(p.dim)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= int64(len(texts)) {
			return nil, fmt.Errorf("unexpected embedding index %d for batch size %d", idx, len(texts))
		}
		if len(item.Embedding) != p.dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", idx, len(item.Embedding), p.dim)
		}
		v := make([]float32, len(item.Embedding))
		for j, x := range item.Embedding {
			v[j] = float32(x)
		}
		vecs[idx] = v
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return vecs, nil
}
