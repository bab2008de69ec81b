package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kamusis/assessrec/internal/catalog"
	"github.com/kamusis/assessrec/internal/config"
	"github.com/kamusis/assessrec/internal/embeddings"
	"github.com/kamusis/assessrec/internal/index"
	"github.com/kamusis/assessrec/internal/vector"
)

var (
	flagBuildCatalog string
	flagBuildBackend string
	flagBuildNoCache bool
	flagBuildTimeout time.Duration
	flagBuildLockTTL time.Duration
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed the catalog and publish the vector index",
	Long: `Read the catalog CSV, embed every assessment with the configured provider,
build the configured vector index (flat or hnsw) and publish it to the
artifact location. A failed build leaves the previous index untouched.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&flagBuildCatalog, "catalog", "", "Catalog CSV (overrides config)")
	buildCmd.Flags().StringVar(&flagBuildBackend, "backend", "", "Index backend: flat or hnsw (overrides config)")
	buildCmd.Flags().BoolVar(&flagBuildNoCache, "no-cache", false, "Do not use the embedding cache")
	buildCmd.Flags().DurationVar(&flagBuildTimeout, "timeout", 30*time.Minute, "Abort the build after this long")
	buildCmd.Flags().DurationVar(&flagBuildLockTTL, "lock-timeout", 10*time.Second, "How long to wait for a concurrent build to finish")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(_ *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	catalogPath := cfg.Catalog
	if flagBuildCatalog != "" {
		catalogPath = flagBuildCatalog
	}
	backend := cfg.Index.Backend
	if flagBuildBackend != "" {
		backend = flagBuildBackend
	}

	unlock, err := index.AcquireBuildLock(buildLockDir(cfg), flagBuildLockTTL)
	if err != nil {
		return err
	}
	defer unlock()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, flagBuildTimeout)
	defer cancel()

	printSection("assessrec build")

	records, err := catalog.Load(catalogPath)
	if err != nil {
		return err
	}
	printOK("", fmt.Sprintf("catalog loaded: %d assessment(s) from %s", len(records), catalogPath))

	prov, err := a.newProvider(ctx)
	if err != nil {
		return err
	}
	if !flagBuildNoCache && cfg.Embeddings.CacheDir != "" {
		cache, err := embeddings.OpenBadgerCache(embeddings.BadgerCacheOptions{
			Dir:    cfg.Embeddings.CacheDir,
			Logger: a.log,
		})
		if err != nil {
			printWarn("", fmt.Sprintf("embedding cache unavailable, continuing without it: %v", err))
		} else {
			defer cache.Close()
			prov = embeddings.NewCached(prov, cache)
		}
	}
	printInfo("", fmt.Sprintf("embedding with %s, %s index", prov.ModelID(), backend))

	bundle, err := index.Build(ctx, prov, records, index.BuildOptions{
		Backend: backend,
		HNSW: vector.HNSWConfig{
			M:              cfg.Index.HNSW.M,
			EfConstruction: cfg.Index.HNSW.EfConstruction,
			EfSearch:       cfg.Index.HNSW.EfSearch,
			Seed:           cfg.Index.HNSW.Seed,
		},
		BatchSize:   cfg.Embeddings.BatchSize,
		Concurrency: cfg.Embeddings.Concurrency,
		Logger:      a.log.Named("build"),
	})
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}

	location, err := publish(ctx, a, bundle)
	if err != nil {
		return fmt.Errorf("cannot publish index: %w", err)
	}
	a.log.Info("index published",
		zap.String("location", location),
		zap.String("model_id", bundle.Manifest.ModelID),
		zap.Int("count", bundle.Manifest.Count),
	)
	printOK("", fmt.Sprintf("index published: %s (%d vectors, dim %d)", location, bundle.Manifest.Count, bundle.Manifest.Dim))
	return nil
}

// publish installs the bundle. Local artifacts are staged and swapped in
// atomically; S3 artifacts rely on the manifest being written last.
func publish(ctx context.Context, a *app, b *index.Bundle) (string, error) {
	if a.cfg.Artifacts.Backend != "s3" {
		dir := a.cfg.Artifacts.Dir
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return "", fmt.Errorf("cannot create %s: %w", filepath.Dir(dir), err)
		}
		return dir, index.PublishDir(ctx, dir, b)
	}
	fs, err := a.artifactStore()
	if err != nil {
		return "", err
	}
	return fs.Location(), index.Publish(ctx, fs, b)
}

// buildLockDir is the directory whose sibling .lock file serializes builds.
// Remote artifacts are locked per machine under ~/.assessrec.
func buildLockDir(cfg *config.Config) string {
	if cfg.Artifacts.Backend != "s3" {
		return cfg.Artifacts.Dir
	}
	dir, err := config.Dir()
	if err != nil {
		return filepath.Join(os.TempDir(), "assessrec-s3-build")
	}
	return filepath.Join(dir, "s3-build")
}
