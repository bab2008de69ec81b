package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kamusis/assessrec/internal/engine"
)

var (
	flagRecommendK      int
	flagRecommendOutput string
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <query>",
	Short: "Recommend assessments for a job description",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecommend,
}

func init() {
	recommendCmd.Flags().IntVar(&flagRecommendK, "k", 5, "Number of results to show")
	recommendCmd.Flags().StringVarP(&flagRecommendOutput, "output", "o", "text", "Output format: text or json")
	rootCmd.AddCommand(recommendCmd)
}

func runRecommend(_ *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("query must not be empty")
	}
	if flagRecommendOutput != "text" && flagRecommendOutput != "json" {
		return fmt.Errorf("unsupported output format: %q (want text or json)", flagRecommendOutput)
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	eng, err := a.newEngine()
	if err != nil {
		return err
	}
	results, err := eng.Recommend(context.Background(), query, flagRecommendK)
	if err != nil {
		if errors.Is(err, engine.ErrEngineUnavailable) {
			return fmt.Errorf("%w\nRun 'assessrec build' first, with the same embeddings settings.", err)
		}
		return err
	}

	if flagRecommendOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Recommendations []engine.Result `json:"recommendations"`
		}{results})
	}
	printRecommendations(query, results)
	return nil
}

func printRecommendations(query string, results []engine.Result) {
	fmt.Printf("\nassessrec recommend %q\n\n", query)
	fmt.Printf("Results (%d found):\n\n", len(results))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i, r := range results {
		fmt.Fprintf(w, "  %d.\t[%.3f]\t%s\n", i+1, r.Score, r.Name)
		fmt.Fprintf(w, "  \t\t%s | %s\n", r.Type, durationText(r.Duration, "min"))
		fmt.Fprintf(w, "  \t\t%s\n", r.URL)
		fmt.Fprintf(w, "  \t\t%s\n", r.Description)
	}
	_ = w.Flush()
}
