package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrSchema indicates the catalog lacks a required column.
var ErrSchema = errors.New("catalog schema error")

// SchemaError names the required column missing from a catalog file.
type SchemaError struct {
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("catalog schema error: required column %q is missing", e.Column)
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// Load reads the catalog file at path.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open catalog %s: %w", path, err)
	}
	defer f.Close()

	records, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("cannot load catalog %s: %w", path, err)
	}
	return records, nil
}

// Read parses a CSV catalog and applies the defaulting policy.
//
// The assessment_name and assessment_url columns are required; the remaining
// columns are optional and default per Defaults when absent or empty.
func Read(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &SchemaError{Column: ColumnName}
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read catalog header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		name := strings.ToLower(strings.TrimSpace(h))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	for _, required := range []string{ColumnName, ColumnURL} {
		if _, ok := cols[required]; !ok {
			return nil, &SchemaError{Column: required}
		}
	}

	cell := func(row []string, column string) (string, bool) {
		i, ok := cols[column]
		if !ok || i >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[i]), true
	}

	var out []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cannot read catalog row %d: %w", line, err)
		}
		if isBlank(row) {
			continue
		}

		name, _ := cell(row, ColumnName)
		url, _ := cell(row, ColumnURL)
		desc, _ := cell(row, ColumnDescription)
		dur, _ := cell(row, ColumnDuration)
		typ, _ := cell(row, ColumnTestType)

		out = append(out, applyDefaults(Record{
			Name:        name,
			URL:         url,
			Description: desc,
			Duration:    ParseDuration(dur),
			TestType:    typ,
		}))
	}
	return out, nil
}

func applyDefaults(r Record) Record {
	if r.Description == "" || isMissingMarker(r.Description) {
		r.Description = Defaults.Description
	}
	if r.TestType == "" || isMissingMarker(r.TestType) {
		r.TestType = Defaults.TestType
	}
	if r.Duration.IsZero() {
		r.Duration = Duration{Label: Defaults.Duration}
	}
	return r
}

// isMissingMarker matches the textual NA markers that data-frame exports
// write for empty cells.
func isMissingMarker(s string) bool {
	switch strings.ToLower(s) {
	case "nan", "none", "null":
		return true
	}
	return false
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
