package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kamusis/assessrec/internal/config"
	"github.com/kamusis/assessrec/internal/embeddings"
	"github.com/kamusis/assessrec/internal/engine"
	"github.com/kamusis/assessrec/internal/logger"
	"github.com/kamusis/assessrec/internal/storage"
)

// app bundles what most commands need: the resolved config and a logger.
type app struct {
	cfg     *config.Config
	cfgFile string
	log     *zap.Logger
}

func loadApp() (*app, error) {
	cfg, used, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w\nRun 'assessrec init' to create one.", err)
	}
	log, err := logger.New(cfg.Log.JSON || flagJSON, cfg.Log.Debug || flagDebug)
	if err != nil {
		return nil, fmt.Errorf("cannot build logger: %w", err)
	}
	if used != "" {
		log.Debug("config loaded", zap.String("file", used))
	}
	return &app{cfg: cfg, cfgFile: used, log: log}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
}

// artifactStore returns the configured artifact location.
func (a *app) artifactStore() (storage.FileStore, error) {
	switch a.cfg.Artifacts.Backend {
	case "s3":
		s3cfg, err := a.s3Config()
		if err != nil {
			return nil, err
		}
		return storage.NewS3(storage.NewS3Client(s3cfg), s3cfg.Bucket, s3cfg.Prefix), nil
	default:
		return storage.NewLocal(a.cfg.Artifacts.Dir)
	}
}

func (a *app) s3Config() (storage.S3Config, error) {
	s := a.cfg.Artifacts.S3
	out := storage.S3Config{
		Bucket:   s.Bucket,
		Prefix:   s.Prefix,
		Region:   s.Region,
		Endpoint: s.Endpoint,
	}
	for key, dst := range map[string]*string{
		config.KeyAWSAccessKeyID:  &out.AccessKeyID,
		config.KeyAWSSecretKey:    &out.SecretAccessKey,
		config.KeyAWSSessionToken: &out.SessionToken,
	} {
		v, err := config.GetConfigValue(key)
		if err != nil {
			return storage.S3Config{}, err
		}
		*dst = v
	}
	return out, nil
}

// newProvider builds the configured embedder. It is also the engine's
// provider factory, so it runs lazily on the first query.
func (a *app) newProvider(ctx context.Context) (embeddings.Provider, error) {
	embCfg, err := embeddings.LoadConfig(a.cfg.Embeddings)
	if err != nil {
		return nil, err
	}
	return embeddings.NewFromConfig(ctx, embCfg)
}

func (a *app) newEngine() (*engine.Engine, error) {
	fs, err := a.artifactStore()
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Options{
		Store:       fs,
		NewProvider: a.newProvider,
		Logger:      a.log.Named("engine"),
	}), nil
}
