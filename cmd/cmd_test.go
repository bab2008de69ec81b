package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kamusis/assessrec/internal/embeddings"
	"github.com/kamusis/assessrec/internal/engine"
	"github.com/kamusis/assessrec/internal/index"
	"github.com/kamusis/assessrec/internal/server"
)

const testCatalog = `assessment_name,assessment_url,description,duration_minutes,test_type
Java Test,https://example.com/java,Core Java programming assessment.,30,Knowledge & Skills
Team Lead,https://example.com/lead,Leadership and people management.,20,Personality & Behavior
Python Test,https://example.com/python,Python scripting assessment.,,General
`

// setupCmdTest writes a catalog and a config into a temp HOME and points
// --config at it.
func setupCmdTest(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	catalogPath := filepath.Join(home, "catalog.csv")
	if err := os.WriteFile(catalogPath, []byte(testCatalog), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(home, "assessrec.yaml")
	body := strings.Join([]string{
		"catalog: " + catalogPath,
		"artifacts:",
		"  backend: local",
		"  dir: " + filepath.Join(home, "artifacts", "index"),
		"embeddings:",
		"  provider: hash",
		"  cache_dir: " + filepath.Join(home, "cache"),
		"index:",
		"  backend: hnsw",
	}, "\n")
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	prev := flagConfig
	flagConfig = cfgPath
	t.Cleanup(func() { flagConfig = prev })
	return home
}

func TestBuildThenRecommend(t *testing.T) {
	home := setupCmdTest(t)
	flagBuildLockTTL = time.Second
	flagBuildTimeout = time.Minute

	if err := runBuild(nil, nil); err != nil {
		t.Fatalf("build: %v", err)
	}
	manifest := filepath.Join(home, "artifacts", "index", index.ManifestFile)
	if _, err := os.Stat(manifest); err != nil {
		t.Fatalf("manifest not published: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "cache")); err != nil {
		t.Fatalf("embedding cache not created: %v", err)
	}

	// A second build reuses the cache and replaces the index in place.
	if err := runBuild(nil, nil); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	a, err := loadApp()
	if err != nil {
		t.Fatal(err)
	}
	eng, err := a.newEngine()
	if err != nil {
		t.Fatal(err)
	}
	res, err := eng.Recommend(context.Background(), "Java developer", 1)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if len(res) != 1 || res[0].Name != "Java Test" {
		t.Fatalf("unexpected results: %+v", res)
	}
	if res[0].Duration != "30" {
		t.Fatalf("duration %q", res[0].Duration)
	}
}

func TestRecommendWithoutIndex(t *testing.T) {
	setupCmdTest(t)
	err := runRecommend(nil, []string{"Java", "developer"})
	if !errors.Is(err, engine.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "assessrec build") {
		t.Fatalf("expected a build hint, got %v", err)
	}
}

func TestBuildLockDir(t *testing.T) {
	home := setupCmdTest(t)
	a, err := loadApp()
	if err != nil {
		t.Fatal(err)
	}
	if got := buildLockDir(a.cfg); got != filepath.Join(home, "artifacts", "index") {
		t.Fatalf("local lock dir %s", got)
	}
	a.cfg.Artifacts.Backend = "s3"
	if got := buildLockDir(a.cfg); got != filepath.Join(home, ".assessrec", "s3-build") {
		t.Fatalf("s3 lock dir %s", got)
	}
}

func TestCheckModelMatch(t *testing.T) {
	p := embeddings.NewHash(0)
	m := index.Manifest{ModelID: p.ModelID(), Dim: p.Dim()}
	if err := checkModelMatch(m, p); err != nil {
		t.Fatal(err)
	}
	m.ModelID = "openai:text-embedding-3-small@1536"
	if err := checkModelMatch(m, p); err == nil {
		t.Fatal("expected model mismatch")
	}
}

func TestValidateQuery(t *testing.T) {
	if err := validateQuery(" \t"); err == nil {
		t.Fatal("blank query should be rejected")
	}
	if err := validateQuery("java"); err != nil {
		t.Fatal(err)
	}
}

func TestMatchPercent(t *testing.T) {
	cases := map[float64]int{0.999: 99, 0.5: 50, 0: 0, 0.3333: 33}
	for in, want := range cases {
		if got := matchPercent(in); got != want {
			t.Errorf("matchPercent(%v) = %d, want %d", in, got, want)
		}
	}
}

func TestRenderResults(t *testing.T) {
	out := renderResults(newUIStyles(), []engine.Result{
		{Score: 0.87, Name: "Java Test", URL: "https://example.com/java", Type: "Knowledge & Skills", Duration: "30", Description: "Core Java..."},
	})
	for _, want := range []string{"Top 1 Matches", "1. Java Test (Match: 87%)", "Knowledge & Skills", "30 mins", "Core Java...", "https://example.com/java"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out = renderResults(newUIStyles(), []engine.Result{
		{Score: 0.5, Name: "Python Test", URL: "https://example.com/python", Type: "General", Duration: "Unknown", Description: "Python..."},
	})
	if !strings.Contains(out, "Unknown") || strings.Contains(out, "Unknown mins") {
		t.Errorf("non-numeric duration rendered with a unit:\n%s", out)
	}

	if out := renderResults(newUIStyles(), nil); !strings.Contains(out, "No close matches") {
		t.Errorf("unexpected empty output: %s", out)
	}
}

func TestDurationText(t *testing.T) {
	cases := map[string]string{"30": "30 mins", "Unknown": "Unknown", "N/A": "N/A", "": ""}
	for in, want := range cases {
		if got := durationText(in, "mins"); got != want {
			t.Errorf("durationText(%q) = %q, want %q", in, got, want)
		}
	}
}

type stubEngine struct{}

func (stubEngine) Recommend(_ context.Context, q string, k int) ([]engine.Result, error) {
	out := make([]engine.Result, k)
	for i := range out {
		out[i] = engine.Result{Name: q, URL: "https://example.com/" + string(rune('a'+i))}
	}
	return out, nil
}

func (stubEngine) State() engine.State { return engine.StateReady }

func TestAPIClient(t *testing.T) {
	srv := httptest.NewServer(server.New(server.Options{Engine: stubEngine{}}).Handler())
	defer srv.Close()

	c := newAPIClient(srv.URL+"/", srv.Client())
	res, err := c.Recommend(context.Background(), "java", 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 7 || res[0].Name != "java" {
		t.Fatalf("unexpected results: %+v", res)
	}

	_, err = c.Recommend(context.Background(), "  ", 5)
	if err == nil || !strings.Contains(err.Error(), "query must not be empty") {
		t.Fatalf("expected 400 detail, got %v", err)
	}
}

func TestAPIClientOffline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := newAPIClient("http://"+addr, &http.Client{Timeout: time.Second})
	_, err = c.Recommend(context.Background(), "java", 5)
	if !errors.Is(err, errAPIOffline) {
		t.Fatalf("expected offline error, got %v", err)
	}
}
