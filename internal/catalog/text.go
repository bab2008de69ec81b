package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CombinedText returns the only text ever embedded for a record.
//
// It is a pure function of the record fields: each field is trimmed and
// NFC-normalized before being placed into a fixed template, so index-time and
// query-time encodings live in the same space.
func CombinedText(r Record) string {
	var b strings.Builder
	b.WriteString("Assessment: ")
	b.WriteString(clean(r.Name))
	b.WriteString(". Type: ")
	b.WriteString(clean(r.TestType))
	b.WriteString(". Duration: ")
	b.WriteString(clean(r.Duration.String()))
	b.WriteString(" minutes. Description: ")
	b.WriteString(clean(r.Description))
	return b.String()
}

// TextHash returns a sha256 hash (hex) of text.
func TextHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Fingerprint identifies a catalog snapshot: any change to a record's URL or
// combined text, or to record order, changes the fingerprint.
func Fingerprint(records []Record) string {
	h := sha256.New()
	for _, r := range records {
		h.Write([]byte(clean(r.URL)))
		h.Write([]byte{0})
		h.Write([]byte(CombinedText(r)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
