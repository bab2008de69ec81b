package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kamusis/assessrec/internal/catalog"
	"github.com/kamusis/assessrec/internal/embeddings"
	"github.com/kamusis/assessrec/internal/engine"
	"github.com/kamusis/assessrec/internal/index"
	"github.com/kamusis/assessrec/internal/storage"
)

type fakeEngine struct {
	mu      sync.Mutex
	queries []string
	ks      []int
	results []engine.Result
	err     error
	block   bool
	state   engine.State
}

func (f *fakeEngine) Recommend(ctx context.Context, query string, topK int) ([]engine.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.ks = append(f.ks, topK)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.results, f.err
}

func (f *fakeEngine) State() engine.State { return f.state }

func (f *fakeEngine) lastK() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ks[len(f.ks)-1]
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := &fakeEngine{}
	h := New(Options{Engine: f}).Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HealthResponse{Status: "active", IndexLoaded: false}, decode[HealthResponse](t, rec))

	f.state = engine.StateReady
	rec = do(t, h, http.MethodGet, "/health", "")
	assert.True(t, decode[HealthResponse](t, rec).IndexLoaded)
}

func TestRecommendClampsTopK(t *testing.T) {
	f := &fakeEngine{results: []engine.Result{{Name: "Java Test", URL: "u", Score: 0.5}}}
	h := New(Options{Engine: f}).Handler()

	cases := []struct {
		body string
		want int
	}{
		{`{"query":"java"}`, 10},
		{`{"query":"java","top_k":0}`, 1},
		{`{"query":"java","top_k":-4}`, 1},
		{`{"query":"java","top_k":7}`, 7},
		{`{"query":"java","top_k":1000}`, 10},
	}
	for _, tc := range cases {
		rec := do(t, h, http.MethodPost, "/recommend", tc.body)
		require.Equal(t, http.StatusOK, rec.Code, tc.body)
		assert.Equal(t, tc.want, f.lastK(), tc.body)
		resp := decode[RecommendResponse](t, rec)
		require.Len(t, resp.Recommendations, 1)
		assert.Equal(t, "Java Test", resp.Recommendations[0].Name)
	}
}

func TestRecommendRejectsEmptyQuery(t *testing.T) {
	f := &fakeEngine{}
	h := New(Options{Engine: f}).Handler()

	for _, body := range []string{`{"query":""}`, `{"query":"  \t\n"}`, `{"top_k":3}`} {
		rec := do(t, h, http.MethodPost, "/recommend", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "query must not be empty", decode[ErrorResponse](t, rec).Detail)
	}
	assert.Empty(t, f.queries)

	rec := do(t, h, http.MethodPost, "/recommend", `{"query":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecommendEngineError(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	f := &fakeEngine{err: errors.New("index exploded with secret details")}
	h := New(Options{Engine: f, Logger: zap.New(core)}).Handler()

	rec := do(t, h, http.MethodPost, "/recommend", `{"query":"java"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "recommendation failed", decode[ErrorResponse](t, rec).Detail)
	assert.NotContains(t, rec.Body.String(), "secret")

	entries := logs.FilterMessage("recommendation failed").All()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
}

func TestRecommendTimeout(t *testing.T) {
	f := &fakeEngine{block: true}
	h := New(Options{Engine: f, RequestTimeout: 20 * time.Millisecond}).Handler()

	rec := do(t, h, http.MethodPost, "/recommend", `{"query":"java"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestRequestID(t *testing.T) {
	h := New(Options{Engine: &fakeEngine{}}).Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	id := rec.Header().Get("X-Request-ID")
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "request id %q", id)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "caller-supplied", rec.Header().Get("X-Request-ID"))
}

func TestUnknownRoute(t *testing.T) {
	h := New(Options{Engine: &fakeEngine{}}).Handler()
	rec := do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decode[ErrorResponse](t, rec).Detail)
}

func TestRecommendWithEngine(t *testing.T) {
	records := []catalog.Record{
		{Name: "Java Test", URL: "https://example.com/java", Description: "Core Java programming assessment.", Duration: catalog.Minutes(30), TestType: "Knowledge & Skills"},
		{Name: "Team Lead", URL: "https://example.com/lead", Description: "Leadership and people management.", Duration: catalog.Minutes(20), TestType: "Personality & Behavior"},
		{Name: "Python Test", URL: "https://example.com/python", Description: "Python scripting assessment.", TestType: "General"},
	}
	ctx := context.Background()
	b, err := index.Build(ctx, embeddings.NewHash(0), records, index.BuildOptions{})
	require.NoError(t, err)
	dir := filepath.Join(t.TempDir(), "index")
	require.NoError(t, index.PublishDir(ctx, dir, b))
	fs, err := storage.NewLocal(dir)
	require.NoError(t, err)

	eng := engine.New(engine.Options{
		Store: fs,
		NewProvider: func(context.Context) (embeddings.Provider, error) {
			return embeddings.NewHash(0), nil
		},
	})
	h := New(Options{Engine: eng}).Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.False(t, decode[HealthResponse](t, rec).IndexLoaded)

	rec = do(t, h, http.MethodPost, "/recommend", `{"query":"Java developer","top_k":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RecommendResponse](t, rec)
	require.Len(t, resp.Recommendations, 1)
	got := resp.Recommendations[0]
	assert.Equal(t, "Java Test", got.Name)
	assert.Equal(t, "30", got.Duration)
	assert.Equal(t, "Knowledge & Skills", got.Type)

	var raw map[string][]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, key := range []string{"score", "name", "url", "type", "duration", "description"} {
		assert.Contains(t, raw["recommendations"][0], key)
	}

	rec = do(t, h, http.MethodGet, "/health", "")
	assert.True(t, decode[HealthResponse](t, rec).IndexLoaded)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := New(Options{Engine: &fakeEngine{}})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
