package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kamusis/assessrec/internal/server"
)

var (
	flagServeAddr string
	flagServeWarm bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recommendations over HTTP",
	Long: `Start the HTTP API:

  POST /recommend   {"query": "...", "top_k": 10}
  GET  /health`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&flagServeWarm, "warm", true, "Load the index at startup instead of on the first request")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	addr := a.cfg.Server.Addr
	if flagServeAddr != "" {
		addr = flagServeAddr
	}

	eng, err := a.newEngine()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagServeWarm {
		// A failed warm-up is not fatal: /health reports index_loaded=false
		// and /recommend answers 500 until the index is fixed and the
		// process restarted.
		if err := eng.Warm(ctx); err != nil {
			a.log.Warn("engine warm-up failed", zap.Error(err))
		}
	}

	srv := server.New(server.Options{
		Engine:         eng,
		Logger:         a.log.Named("http"),
		RequestTimeout: a.cfg.Server.RequestTimeout,
	})
	return srv.Run(ctx, addr)
}
