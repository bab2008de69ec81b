package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamusis/assessrec/internal/evaluate"
)

var (
	flagPredictInput  string
	flagPredictOutput string
	flagPredictK      int
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Write recommendations for unlabeled queries to a CSV",
	Long: `Read queries from the Query column of a CSV or .xlsx workbook and write
one Query,Assessment_url row per recommendation.`,
	Args: cobra.NoArgs,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&flagPredictInput, "input", "", "CSV or .xlsx with a Query column")
	predictCmd.Flags().StringVar(&flagPredictOutput, "output", "predictions.csv", "Predictions CSV to write")
	predictCmd.Flags().IntVar(&flagPredictK, "k", 10, "Number of recommendations per query")
	_ = predictCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(_ *cobra.Command, _ []string) error {
	if flagPredictK <= 0 {
		return errors.New("--k must be positive")
	}
	queries, err := evaluate.LoadQueries(flagPredictInput)
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

	preds, err := evaluate.Predict(context.Background(), eng, queries, flagPredictK)
	if err != nil {
		return err
	}

	f, err := os.Create(flagPredictOutput)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", flagPredictOutput, err)
	}
	if err := evaluate.WritePredictions(f, preds); err != nil {
		f.Close()
		return fmt.Errorf("cannot write predictions: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	printOK("", fmt.Sprintf("saved predictions for %d queries to %s", len(queries), flagPredictOutput))
	return nil
}
