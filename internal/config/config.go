package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g.
// ASSESSREC_EMBEDDINGS_PROVIDER overrides embeddings.provider.
const EnvPrefix = "ASSESSREC"

// FileName is the config file name looked up in . and ~/.assessrec/.
const FileName = "assessrec.yaml"

// Config is the in-memory representation of assessrec.yaml.
type Config struct {
	Catalog    string           `yaml:"catalog" mapstructure:"catalog"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts" mapstructure:"artifacts"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" mapstructure:"embeddings"`
	Index      IndexConfig      `yaml:"index" mapstructure:"index"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ArtifactsConfig says where built indexes are published and read from.
type ArtifactsConfig struct {
	// Backend is "local" or "s3".
	Backend string   `yaml:"backend" mapstructure:"backend"`
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	S3      S3Config `yaml:"s3" mapstructure:"s3"`
}

// S3Config locates artifacts in a bucket. Credentials come from AWS_* keys
// in the environment or the dotenv file, never from this file.
type S3Config struct {
	Bucket   string `yaml:"bucket" mapstructure:"bucket"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	Region   string `yaml:"region,omitempty" mapstructure:"region"`
	Endpoint string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
}

type EmbeddingsConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"`
	Model       string `yaml:"model,omitempty" mapstructure:"model"`
	Dimensions  int    `yaml:"dimensions,omitempty" mapstructure:"dimensions"`
	BaseURL     string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	// CacheDir holds the build-time embedding cache. Empty disables it.
	CacheDir string `yaml:"cache_dir,omitempty" mapstructure:"cache_dir"`
}

type IndexConfig struct {
	Backend string     `yaml:"backend" mapstructure:"backend"`
	HNSW    HNSWConfig `yaml:"hnsw" mapstructure:"hnsw"`
}

type HNSWConfig struct {
	M              int    `yaml:"m" mapstructure:"m"`
	EfConstruction int    `yaml:"ef_construction" mapstructure:"ef_construction"`
	EfSearch       int    `yaml:"ef_search" mapstructure:"ef_search"`
	Seed           uint64 `yaml:"seed" mapstructure:"seed"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

type LogConfig struct {
	JSON  bool `yaml:"json" mapstructure:"json"`
	Debug bool `yaml:"debug" mapstructure:"debug"`
}

// Dir returns the absolute path to ~/.assessrec/.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".assessrec"), nil
}

// ConfigPath returns the absolute path to ~/.assessrec/assessrec.yaml.
func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// DefaultConfig returns the configuration used when no file sets a value.
func DefaultConfig() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return &Config{
		Catalog: "catalog.csv",
		Artifacts: ArtifactsConfig{
			Backend: "local",
			Dir:     filepath.Join(dir, "index"),
		},
		Embeddings: EmbeddingsConfig{
			Provider:    "hash",
			BatchSize:   64,
			Concurrency: 4,
			CacheDir:    filepath.Join(dir, "cache"),
		},
		Index: IndexConfig{
			Backend: "flat",
			HNSW: HNSWConfig{
				M:              16,
				EfConstruction: 200,
				EfSearch:       64,
				Seed:           42,
			},
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8000",
			RequestTimeout: 15 * time.Second,
		},
	}, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("catalog", d.Catalog)
	v.SetDefault("artifacts.backend", d.Artifacts.Backend)
	v.SetDefault("artifacts.dir", d.Artifacts.Dir)
	v.SetDefault("artifacts.s3.bucket", "")
	v.SetDefault("artifacts.s3.prefix", "")
	v.SetDefault("artifacts.s3.region", "")
	v.SetDefault("artifacts.s3.endpoint", "")
	v.SetDefault("embeddings.provider", d.Embeddings.Provider)
	v.SetDefault("embeddings.model", "")
	v.SetDefault("embeddings.dimensions", 0)
	v.SetDefault("embeddings.base_url", "")
	v.SetDefault("embeddings.batch_size", d.Embeddings.BatchSize)
	v.SetDefault("embeddings.concurrency", d.Embeddings.Concurrency)
	v.SetDefault("embeddings.cache_dir", d.Embeddings.CacheDir)
	v.SetDefault("index.backend", d.Index.Backend)
	v.SetDefault("index.hnsw.m", d.Index.HNSW.M)
	v.SetDefault("index.hnsw.ef_construction", d.Index.HNSW.EfConstruction)
	v.SetDefault("index.hnsw.ef_search", d.Index.HNSW.EfSearch)
	v.SetDefault("index.hnsw.seed", d.Index.HNSW.Seed)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)
}

// Load resolves the configuration: defaults, then the config file, then
// ASSESSREC_* environment variables. An explicit path must exist; without
// one, assessrec.yaml is looked up in . and ~/.assessrec/ and may be absent.
// It returns the config and the file actually used ("" when none).
func Load(path string) (*Config, string, error) {
	defaults, err := DefaultConfig()
	if err != nil {
		return nil, "", err
	}

	v := viper.New()
	setDefaults(v, defaults)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, "", err
		}
		v.SetConfigFile(expanded)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("cannot read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.expand(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, v.ConfigFileUsed(), nil
}

func (c *Config) expand() error {
	for _, p := range []*string{&c.Catalog, &c.Artifacts.Dir, &c.Embeddings.CacheDir} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// Validate checks enumerated values and ranges.
func (c *Config) Validate() error {
	switch c.Artifacts.Backend {
	case "local":
		if c.Artifacts.Dir == "" {
			return errors.New("artifacts.dir is required for the local backend")
		}
	case "s3":
		if c.Artifacts.S3.Bucket == "" {
			return errors.New("artifacts.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported artifacts.backend: %q (want local or s3)", c.Artifacts.Backend)
	}
	switch c.Index.Backend {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("unsupported index.backend: %q (want flat or hnsw)", c.Index.Backend)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must not be negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive, got %s", c.Server.RequestTimeout)
	}
	return nil
}

// Save marshals cfg and writes it to path, creating parent directories.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}
