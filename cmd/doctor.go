package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamusis/assessrec/internal/catalog"
	"github.com/kamusis/assessrec/internal/embeddings"
	"github.com/kamusis/assessrec/internal/index"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run pre-flight environment checks",
	Long: `Check that the config, catalog, embeddings provider and published index
agree with each other. Run this when recommendations fail to load.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(_ *cobra.Command, _ []string) error {
	allOK := true
	failD := func(format string, args ...any) {
		printErr("", fmt.Sprintf(format, args...))
		allOK = false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	printSection("assessrec doctor")
	fmt.Println()

	// ── Check 1: config ───────────────────────────────────────────────────────
	fmt.Println("[ config ]")
	a, loadErr := loadApp()
	if loadErr != nil {
		failD("%v", loadErr)
	} else {
		defer a.close()
		if a.cfgFile == "" {
			printWarn("", "no assessrec.yaml found — using defaults (run 'assessrec init')")
		} else {
			printOK("", fmt.Sprintf("valid config: %s", a.cfgFile))
		}
	}
	fmt.Println()

	if loadErr != nil {
		fmt.Println("===================")
		fmt.Fprintln(os.Stderr, "✗  Config could not be loaded; remaining checks skipped.")
		return fmt.Errorf("doctor found issues")
	}
	cfg := a.cfg

	// ── Check 2: catalog ──────────────────────────────────────────────────────
	fmt.Println("[ catalog ]")
	records, err := catalog.Load(cfg.Catalog)
	switch {
	case errors.Is(err, os.ErrNotExist):
		printWarn("", fmt.Sprintf("catalog not found: %s (only needed for 'assessrec build')", cfg.Catalog))
	case err != nil:
		failD("catalog invalid: %v", err)
	default:
		printOK("", fmt.Sprintf("%d assessment(s) in %s", len(records), cfg.Catalog))
	}
	fmt.Println()

	// ── Check 3: embeddings provider ──────────────────────────────────────────
	fmt.Println("[ embeddings ]")
	prov, provErr := a.newProvider(ctx)
	if provErr != nil {
		failD("provider %q unavailable: %v", cfg.Embeddings.Provider, provErr)
	} else {
		printOK("", fmt.Sprintf("%s (dim %d)", prov.ModelID(), prov.Dim()))
	}
	if cfg.Embeddings.CacheDir != "" {
		if _, err := os.Stat(cfg.Embeddings.CacheDir); err == nil {
			printOK("", fmt.Sprintf("embedding cache: %s", cfg.Embeddings.CacheDir))
		} else {
			printSkip("", "embedding cache not created yet")
		}
	}
	fmt.Println()

	// ── Check 4: published index ──────────────────────────────────────────────
	fmt.Println("[ index ]")
	fs, err := a.artifactStore()
	if err != nil {
		failD("artifact store unavailable: %v", err)
	} else {
		m, err := index.ReadManifest(ctx, fs)
		switch {
		case errors.Is(err, index.ErrNotBuilt):
			failD("no index at %s — run 'assessrec build'", fs.Location())
		case err != nil:
			failD("%v", err)
		default:
			printOK("", fmt.Sprintf("%s index at %s: %d vectors, built %s",
				m.Backend, fs.Location(), m.Count, m.CreatedAt))
			if provErr == nil {
				if err := checkModelMatch(m, prov); err != nil {
					failD("%v — rebuild the index or change embeddings settings", err)
				} else {
					printOK("", "index model matches the configured provider")
				}
			}
			if records != nil && m.CatalogFingerprint != "" && m.CatalogFingerprint != catalog.Fingerprint(records) {
				printWarn("", "catalog changed since the index was built — run 'assessrec build'")
			}
		}
	}
	fmt.Println()

	// ── Summary ───────────────────────────────────────────────────────────────
	fmt.Println("===================")
	if allOK {
		fmt.Println("✓  All checks passed. assessrec is ready to use.")
	} else {
		fmt.Fprintln(os.Stderr, "✗  One or more checks failed. See details above.")
		return fmt.Errorf("doctor found issues")
	}
	return nil
}

func checkModelMatch(m index.Manifest, prov embeddings.Provider) error {
	if m.ModelID != prov.ModelID() {
		return fmt.Errorf("model mismatch: index=%s provider=%s", m.ModelID, prov.ModelID())
	}
	if m.Dim != prov.Dim() {
		return fmt.Errorf("dimension mismatch: index=%d provider=%d", m.Dim, prov.Dim())
	}
	return nil
}
