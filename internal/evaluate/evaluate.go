// Package evaluate measures retrieval quality against labeled queries and
// produces prediction files for unlabeled ones.
package evaluate

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kamusis/assessrec/internal/engine"
)

const (
	ColumnQuery = "Query"
	ColumnURL   = "Assessment_url"
)

// ErrMissingColumn is returned when an input file lacks a required header.
var ErrMissingColumn = errors.New("missing required column")

// Recommender is satisfied by *engine.Engine.
type Recommender interface {
	Recommend(ctx context.Context, query string, topK int) ([]engine.Result, error)
}

// NormalizeURL makes catalog URLs comparable: "/solutions" segments are
// dropped, surrounding whitespace trimmed and the result lowercased.
func NormalizeURL(u string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(u, "/solutions", "")))
}

// Labels maps each labeled query to its relevant (normalized) URLs.
// Queries keeps first-appearance order.
type Labels struct {
	Queries  []string
	Relevant map[string]map[string]struct{}
}

// LoadLabels reads a labels file. Files ending in .xlsx are read from their
// first sheet; anything else is parsed as CSV.
func LoadLabels(path string) (*Labels, error) {
	table, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read labels: %w", err)
	}
	return labelsFromTable(table)
}

// ReadLabels parses a CSV with Query and Assessment_url columns, one row per
// relevant assessment.
func ReadLabels(r io.Reader) (*Labels, error) {
	table, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	return labelsFromTable(table)
}

func labelsFromTable(table [][]string) (*Labels, error) {
	rows, cols, err := selectColumns(table, ColumnQuery, ColumnURL)
	if err != nil {
		return nil, err
	}
	l := &Labels{Relevant: map[string]map[string]struct{}{}}
	for _, row := range rows {
		q := row[cols[0]]
		u := NormalizeURL(row[cols[1]])
		if strings.TrimSpace(q) == "" || u == "" {
			continue
		}
		set, ok := l.Relevant[q]
		if !ok {
			set = map[string]struct{}{}
			l.Relevant[q] = set
			l.Queries = append(l.Queries, q)
		}
		set[u] = struct{}{}
	}
	return l, nil
}

// LoadQueries reads the Query column of a CSV or .xlsx file.
func LoadQueries(path string) ([]string, error) {
	table, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read queries: %w", err)
	}
	return queriesFromTable(table)
}

// ReadQueries returns the Query column of a CSV in file order. Blank queries
// are skipped.
func ReadQueries(r io.Reader) ([]string, error) {
	table, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	return queriesFromTable(table)
}

func queriesFromTable(table [][]string) ([]string, error) {
	rows, cols, err := selectColumns(table, ColumnQuery)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if q := row[cols[0]]; strings.TrimSpace(q) != "" {
			out = append(out, q)
		}
	}
	return out, nil
}

func readFile(path string) ([][]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return readXLSX(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCSV(f)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	table, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("cannot parse csv: %w", err)
	}
	return table, nil
}

// readXLSX returns the rows of the workbook's first sheet.
func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

// selectColumns locates the required header columns in table and returns
// the data rows padded to the header width.
func selectColumns(table [][]string, required ...string) ([][]string, []int, error) {
	if len(table) == 0 {
		return nil, nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	header := table[0]
	pos := map[string]int{}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	cols := make([]int, len(required))
	for i, name := range required {
		p, ok := pos[name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		cols[i] = p
	}

	rows := make([][]string, 0, len(table)-1)
	for _, rec := range table[1:] {
		row := make([]string, len(header))
		copy(row, rec)
		rows = append(rows, row)
	}
	return rows, cols, nil
}

// Recall returns how many relevant URLs appear among predicted and the
// fraction of relevant URLs found. An empty relevant set has recall 0.
func Recall(predicted []string, relevant map[string]struct{}) (int, float64) {
	if len(relevant) == 0 {
		return 0, 0
	}
	seen := make(map[string]struct{}, len(predicted))
	hits := 0
	for _, p := range predicted {
		u := NormalizeURL(p)
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if _, ok := relevant[u]; ok {
			hits++
		}
	}
	return hits, float64(hits) / float64(len(relevant))
}

type QueryRecall struct {
	Query    string
	Hits     int
	Relevant int
	Recall   float64
}

type Report struct {
	K       int
	Queries []QueryRecall
	Mean    float64
}

// Evaluate runs every labeled query through rec and computes Recall@k.
func Evaluate(ctx context.Context, rec Recommender, labels *Labels, k int) (*Report, error) {
	if labels == nil || len(labels.Queries) == 0 {
		return nil, errors.New("no labeled queries")
	}
	report := &Report{K: k}
	var sum float64
	for _, q := range labels.Queries {
		results, err := rec.Recommend(ctx, q, k)
		if err != nil {
			return nil, fmt.Errorf("recommend %q: %w", q, err)
		}
		urls := make([]string, len(results))
		for i, r := range results {
			urls[i] = r.URL
		}
		relevant := labels.Relevant[q]
		hits, recall := Recall(urls, relevant)
		report.Queries = append(report.Queries, QueryRecall{
			Query:    q,
			Hits:     hits,
			Relevant: len(relevant),
			Recall:   recall,
		})
		sum += recall
	}
	report.Mean = sum / float64(len(report.Queries))
	return report, nil
}

// Prediction is one row of a predictions file.
type Prediction struct {
	Query string
	URL   string
}

// Predict returns up to k predictions per query, in query order and then
// rank order.
func Predict(ctx context.Context, rec Recommender, queries []string, k int) ([]Prediction, error) {
	var out []Prediction
	for _, q := range queries {
		results, err := rec.Recommend(ctx, q, k)
		if err != nil {
			return nil, fmt.Errorf("recommend %q: %w", q, err)
		}
		for _, r := range results {
			out = append(out, Prediction{Query: q, URL: r.URL})
		}
	}
	return out, nil
}

// WritePredictions writes a Query,Assessment_url CSV.
func WritePredictions(w io.Writer, preds []Prediction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColumnQuery, ColumnURL}); err != nil {
		return err
	}
	for _, p := range preds {
		if err := cw.Write([]string{p.Query, p.URL}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
