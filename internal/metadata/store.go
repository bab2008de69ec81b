// Package metadata holds the catalog records aligned with vector index slots.
package metadata

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/kamusis/assessrec/internal/catalog"
)

// ErrIndexOutOfRange is returned by Get for a slot outside [0, Len()).
var ErrIndexOutOfRange = errors.New("metadata index out of range")

// Store maps vector slots to catalog records. Record i describes the vector in
// slot i. A Store is immutable and safe for concurrent reads.
type Store struct {
	records []catalog.Record
}

// New returns a store holding a copy of records.
func New(records []catalog.Record) *Store {
	cp := make([]catalog.Record, len(records))
	copy(cp, records)
	return &Store{records: cp}
}

func (s *Store) Len() int {
	return len(s.records)
}

func (s *Store) Get(slot int) (catalog.Record, error) {
	if slot < 0 || slot >= len(s.records) {
		return catalog.Record{}, fmt.Errorf("%w: slot %d, store has %d records", ErrIndexOutOfRange, slot, len(s.records))
	}
	return s.records[slot], nil
}

// Write writes one JSON record per line in slot order.
func (s *Store) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i, r := range s.records {
		line, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
		if _, err := bw.Write(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Read parses a store written by Write. Blank lines are skipped.
func Read(r io.Reader) (*Store, error) {
	var out []catalog.Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec catalog.Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("invalid metadata JSONL at line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read metadata: %w", err)
	}
	return &Store{records: out}, nil
}
