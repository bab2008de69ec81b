package catalog

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Column names of the catalog file. Order in the file is irrelevant.
const (
	ColumnName        = "assessment_name"
	ColumnURL         = "assessment_url"
	ColumnDescription = "description"
	ColumnDuration    = "duration_minutes"
	ColumnTestType    = "test_type"
)

// Defaults is the defaulting policy applied once, at load time, to optional fields.
var Defaults = struct {
	Description string
	Duration    string
	TestType    string
}{
	Description: "No description available.",
	Duration:    "Unknown",
	TestType:    "General",
}

// Record is one assessment row of the catalog.
type Record struct {
	Name        string   `json:"assessment_name"`
	URL         string   `json:"assessment_url"`
	Description string   `json:"description"`
	Duration    Duration `json:"duration_minutes"`
	TestType    string   `json:"test_type"`
}

// Duration is an assessment length in minutes, or a label such as "Unknown"
// when the catalog did not carry a usable number.
type Duration struct {
	Minutes int
	Known   bool
	Label   string
}

// Minutes returns a known duration.
func Minutes(m int) Duration {
	return Duration{Minutes: m, Known: true}
}

// maxMinutes bounds parsed durations so they fit an int on every platform.
const maxMinutes = math.MaxInt32

// ParseDuration parses a catalog cell. Integral numbers ("30", "30.0") up to
// maxMinutes are known durations; anything else falls back to the default
// label.
func ParseDuration(s string) Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return Duration{Label: Defaults.Duration}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= maxMinutes {
		return Minutes(n)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > maxMinutes || f != math.Trunc(f) {
		return Duration{Label: Defaults.Duration}
	}
	return Minutes(int(f))
}

// IsZero reports whether d carries neither minutes nor a label.
func (d Duration) IsZero() bool {
	return !d.Known && d.Label == ""
}

func (d Duration) String() string {
	switch {
	case d.Known:
		return strconv.Itoa(d.Minutes)
	case d.Label != "":
		return d.Label
	default:
		return Defaults.Duration
	}
}

// MarshalJSON renders known durations as numbers and everything else as its label.
func (d Duration) MarshalJSON() ([]byte, error) {
	if d.Known {
		return []byte(strconv.Itoa(d.Minutes)), nil
	}
	return json.Marshal(d.Label)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*d = ParseDuration(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if parsed := ParseDuration(s); parsed.Known {
		*d = parsed
		return nil
	}
	*d = Duration{Label: s}
	return nil
}
