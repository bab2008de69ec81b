package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kamusis/assessrec/internal/evaluate"
	"github.com/kamusis/assessrec/internal/logger"
)

var (
	flagEvalLabels string
	flagEvalK      int
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Measure Recall@K against labeled queries",
	Long: `Run every labeled query through the index and report Recall@K per query
and the mean. The labels file is a CSV or .xlsx workbook (first sheet) with
Query and Assessment_url columns, one row per relevant assessment.`,
	Args: cobra.NoArgs,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&flagEvalLabels, "labels", "", "Labeled CSV or .xlsx (Query, Assessment_url)")
	evalCmd.Flags().IntVar(&flagEvalK, "k", 10, "Number of recommendations per query")
	_ = evalCmd.MarkFlagRequired("labels")
	rootCmd.AddCommand(evalCmd)
}

func runEval(_ *cobra.Command, _ []string) error {
	if flagEvalK <= 0 {
		return errors.New("--k must be positive")
	}
	labels, err := evaluate.LoadLabels(flagEvalLabels)
	if err != nil {
		return err
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

	report, err := evaluate.Evaluate(context.Background(), eng, labels, flagEvalK)
	if err != nil {
		return err
	}

	printSection(fmt.Sprintf("Recall@%d", report.K))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, q := range report.Queries {
		fmt.Fprintf(w, "  %.2f\t%d/%d\t%s\n", q.Recall, q.Hits, q.Relevant, logger.TruncateForLog(q.Query, 80))
	}
	_ = w.Flush()
	fmt.Println("===================")
	fmt.Printf("Mean Recall@%d: %.3f (%d queries)\n", report.K, report.Mean, len(report.Queries))
	return nil
}
