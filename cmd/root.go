package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig string
	flagDebug  bool
	flagJSON   bool
)

var rootCmd = &cobra.Command{
	Use:          "assessrec",
	Short:        "assessrec — semantic assessment recommendations from a job description",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `assessrec embeds an assessment catalog into a vector index and answers
free-text hiring queries with the closest assessments, from the command line,
an interactive prompt or an HTTP API.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: ./assessrec.yaml or ~/.assessrec/assessrec.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Log as JSON")
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
