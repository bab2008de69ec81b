package engine

import (
	"strings"

	"github.com/kamusis/assessrec/internal/catalog"
)

const (
	descriptionLimit = 150
	ellipsis         = "..."
	notAvailable     = "N/A"
)

// Result is one recommended assessment.
type Result struct {
	Score       float64 `json:"score"`
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	Type        string  `json:"type"`
	Duration    string  `json:"duration"`
	Description string  `json:"description"`
}

func newResult(score float32, r catalog.Record) Result {
	typ := strings.TrimSpace(r.TestType)
	if typ == "" {
		typ = notAvailable
	}
	dur := r.Duration.String()
	if r.Duration.IsZero() || strings.TrimSpace(dur) == "" {
		dur = notAvailable
	}
	return Result{
		Score:       float64(score),
		Name:        r.Name,
		URL:         r.URL,
		Type:        typ,
		Duration:    dur,
		Description: Truncate(r.Description),
	}
}

// Truncate keeps the first 150 characters of s and always appends "...",
// even when s is shorter.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) > descriptionLimit {
		runes = runes[:descriptionLimit]
	}
	return string(runes) + ellipsis
}
