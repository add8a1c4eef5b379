package memory

import (
	"context"
	"sync"

	"dedupe/internal/domain"
)

// Store is an in-memory JudgmentStore. It is used for dry runs and tests.
type Store struct {
	mu        sync.RWMutex
	judgments []domain.LabeledPair
	saves     int
}

func NewStore(initial ...domain.LabeledPair) *Store {
	return &Store{judgments: append([]domain.LabeledPair(nil), initial...)}
}

func (s *Store) Load(ctx context.Context) ([]domain.LabeledPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LabeledPair, len(s.judgments))
	copy(out, s.judgments)
	return out, nil
}

func (s *Store) Save(_ context.Context, judgments []domain.LabeledPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.judgments = append(s.judgments[:0:0], judgments...)
	s.saves++
	return nil
}

// Saves reports how many times Save was called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func (s *Store) Close() error { return nil }
