package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamusis/assessrec/internal/config"
	"github.com/kamusis/assessrec/internal/embeddings"
	"github.com/kamusis/assessrec/internal/vector"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create ~/.assessrec with a default config and secrets template",
	Long: `Initialize ~/.assessrec/:

  assessrec.yaml   configuration (catalog, embeddings, index, artifacts, server)
  .env             secrets template (API keys, AWS credentials)
  index/           default local artifact directory`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	flagInitProvider string
	flagInitBackend  string
	flagInitCatalog  string
	flagInitForce    bool
)

func init() {
	initCmd.Flags().StringVar(&flagInitProvider, "provider", embeddings.ProviderHash, "Embeddings provider: hash, openai or gemini")
	initCmd.Flags().StringVar(&flagInitBackend, "backend", vector.BackendFlat, "Index backend: flat or hnsw")
	initCmd.Flags().StringVar(&flagInitCatalog, "catalog", "", "Catalog CSV path to record in the config")
	initCmd.Flags().BoolVar(&flagInitForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	// ── 1. Resolve ~/.assessrec ───────────────────────────────────────────────
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	cfgPath := flagConfig
	if cfgPath == "" {
		if cfgPath, err = config.ConfigPath(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	printOK("", fmt.Sprintf("assessrec directory ready: %s", dir))

	// ── 2. Write assessrec.yaml if missing ────────────────────────────────────
	_, statErr := os.Stat(cfgPath)
	if os.IsNotExist(statErr) || flagInitForce {
		cfg, err := config.DefaultConfig()
		if err != nil {
			return err
		}
		cfg.Embeddings.Provider = flagInitProvider
		cfg.Index.Backend = flagInitBackend
		if flagInitCatalog != "" {
			if cfg.Catalog, err = config.ExpandPath(flagInitCatalog); err != nil {
				return err
			}
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		printOK("", fmt.Sprintf("config written: %s", cfgPath))
	} else {
		printSkip("", fmt.Sprintf("config already exists: %s (use --force to overwrite)", cfgPath))
	}

	// ── 3. Secrets template ───────────────────────────────────────────────────
	if err := config.EnsureDotEnvTemplate(); err != nil {
		return err
	}
	envPath, _ := config.DotEnvPath()
	printOK("", fmt.Sprintf("secrets file ready: %s", envPath))

	// ── 4. Local artifact directory ───────────────────────────────────────────
	cfg, _, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cfg.Artifacts.Backend == "local" {
		if err := os.MkdirAll(cfg.Artifacts.Dir, 0o755); err != nil {
			return fmt.Errorf("cannot create %s: %w", cfg.Artifacts.Dir, err)
		}
		printOK("", fmt.Sprintf("artifact directory ready: %s", cfg.Artifacts.Dir))
	}

	fmt.Println("\n✓  assessrec init complete. Run 'assessrec build' to index your catalog.")
	return nil
}
