package memory

import (
	"context"
	"sync"

	"balanceview/internal/core"
	ports "balanceview/internal/sheets"
)

// Store keeps exported months in memory, keyed by tab title.
type Store struct {
	mu      sync.Mutex
	tabs    map[string][][]any
	exports int
}

var _ ports.MonthExporter = (*Store)(nil)

func New() *Store {
	return &Store{tabs: make(map[string][][]any)}
}

// ExportMonth replaces the tab for the user's month with the snapshot rows.
func (s *Store) ExportMonth(ctx context.Context, userID string, snapshot core.MonthSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := ports.Rows(snapshot)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs[ports.TabTitle(userID, snapshot.Month)] = rows
	s.exports++
	return nil
}

// Tab returns a copy of the rows last exported under title.
func (s *Store) Tab(title string) ([][]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tabs[title]
	if !ok {
		return nil, false
	}
	return append([][]any(nil), rows...), true
}

// Exports counts ExportMonth calls that succeeded.
func (s *Store) Exports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exports
}
