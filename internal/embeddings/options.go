package embeddings

import "net/http"

// options holds shared configuration for remote providers.
type options struct {
	model      string
	dim        int
	baseURL    string
	httpClient *http.Client
}

// Option configures a remote provider.
type Option func(*options)

// WithModel sets the embedding model name. Empty keeps the provider default.
func WithModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.model = model
		}
	}
}

// WithDimension sets the output dimensionality. Zero keeps the provider default.
func WithDimension(dim int) Option {
	return func(o *options) {
		if dim > 0 {
			o.dim = dim
		}
	}
}

// WithBaseURL overrides the API base URL (OpenAI-compatible servers).
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}
