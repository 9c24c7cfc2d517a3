package memory

import (
	"context"
	"sync"

	"spesen/internal/export"
)

// Store keeps exported rows in memory, grouped by report year. Used by
// tests and as a fallback when no spreadsheet is configured.
type Store struct {
	mu   sync.Mutex
	rows map[int][]export.ReportRow
}

func New() *Store {
	return &Store{rows: make(map[int][]export.ReportRow)}
}

func (s *Store) Append(_ context.Context, row export.ReportRow) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	year := row.Year()
	s.rows[year] = append(s.rows[year], row)
	return row.Ref(), nil
}

func (s *Store) Delete(_ context.Context, year int, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[year][:0]
	for _, row := range s.rows[year] {
		if row.Ref() != ref {
			kept = append(kept, row)
		}
	}
	s.rows[year] = kept
	return nil
}

// Rows returns a copy of the year's rows.
func (s *Store) Rows(year int) []export.ReportRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]export.ReportRow(nil), s.rows[year]...)
}
