package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
	"github.com/JakeFAU/wayback-fetcher/internal/store"
)

// RecordStore keeps pagination state per domain.
type RecordStore struct {
	mu     sync.RWMutex
	states map[string]archive.PaginationState
	saves  int
}

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{states: make(map[string]archive.PaginationState)}
}

// Load returns a copy of the stored state.
func (s *RecordStore) Load(_ context.Context, domain string) (archive.PaginationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[domain]
	if !ok {
		return archive.PaginationState{}, fmt.Errorf("load %s: %w", domain, store.ErrNotFound)
	}
	return cloneState(state), nil
}

// Save replaces the stored state for state.Domain.
func (s *RecordStore) Save(_ context.Context, state archive.PaginationState) error {
	if state.Domain == "" {
		return fmt.Errorf("state domain is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Domain] = cloneState(state)
	s.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (s *RecordStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func cloneState(state archive.PaginationState) archive.PaginationState {
	out := state
	out.Header = append([]string(nil), state.Header...)
	out.Records = append([]archive.IndexRecord(nil), state.Records...)
	return out
}
