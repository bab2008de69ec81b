package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, used, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if used != "" {
		t.Fatalf("expected no config file, got %s", used)
	}
	if cfg.Embeddings.Provider != "hash" || cfg.Index.Backend != "flat" || cfg.Artifacts.Backend != "local" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Artifacts.Dir != filepath.Join(home, ".assessrec", "index") {
		t.Fatalf("unexpected artifacts dir %s", cfg.Artifacts.Dir)
	}
	if cfg.Server.Addr != "127.0.0.1:8000" || cfg.Server.RequestTimeout != 15*time.Second {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Index.HNSW.M != 16 || cfg.Index.HNSW.Seed != 42 {
		t.Fatalf("unexpected hnsw defaults: %+v", cfg.Index.HNSW)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	body := strings.Join([]string{
		"catalog: ~/data/catalog.csv",
		"index:",
		"  backend: hnsw",
		"  hnsw:",
		"    ef_search: 128",
		"server:",
		"  request_timeout: 5s",
		"embeddings:",
		"  provider: openai",
		"  dimensions: 256",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ASSESSREC_EMBEDDINGS_PROVIDER", "gemini")
	t.Setenv("ASSESSREC_SERVER_ADDR", "0.0.0.0:9000")

	cfg, used, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if used != path {
		t.Fatalf("used %s want %s", used, path)
	}
	if cfg.Catalog != filepath.Join(home, "data", "catalog.csv") {
		t.Fatalf("catalog path not expanded: %s", cfg.Catalog)
	}
	if cfg.Index.Backend != "hnsw" || cfg.Index.HNSW.EfSearch != 128 || cfg.Index.HNSW.M != 16 {
		t.Fatalf("unexpected index config: %+v", cfg.Index)
	}
	if cfg.Server.RequestTimeout != 5*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Server.RequestTimeout)
	}
	if cfg.Embeddings.Provider != "gemini" || cfg.Embeddings.Dimensions != 256 {
		t.Fatalf("env override not applied: %+v", cfg.Embeddings)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("env override not applied: %s", cfg.Server.Addr)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cases := map[string]string{
		"index backend":     "index:\n  backend: annoy\n",
		"artifacts backend": "artifacts:\n  backend: ftp\n",
		"s3 bucket":         "artifacts:\n  backend: s3\n",
		"timeout":           "server:\n  request_timeout: 0s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "assessrec.yaml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, _, err := Load(path); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Index.Backend = "hnsw"
	cfg.Server.RequestTimeout = 30 * time.Second

	path := filepath.Join(t.TempDir(), "nested", FileName)
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Index.Backend != "hnsw" || got.Server.RequestTimeout != 30*time.Second {
		t.Fatalf("round trip lost values: %+v", got)
	}
	if got.Artifacts.Dir != cfg.Artifacts.Dir {
		t.Fatalf("artifacts dir changed: %s vs %s", got.Artifacts.Dir, cfg.Artifacts.Dir)
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	got, err := ExpandPath("~/x/y")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "x", "y") {
		t.Fatalf("got %s", got)
	}
	if got, _ := ExpandPath("/abs"); got != "/abs" {
		t.Fatalf("got %s", got)
	}
}
