package provider

import (
	"context"
	"fmt"
	"sync"

	"competitor-radar/internal/models"
)

// Static serves businesses from memory. The simulate command and tests use it.
type Static struct {
	mu    sync.RWMutex
	data  map[string]models.CompetitorData
	errs  map[string]error
	calls map[string]int
}

// NewStatic creates an empty static provider
func NewStatic() *Static {
	return &Static{
		data:  make(map[string]models.CompetitorData),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

// Set stores the metrics returned for id and clears any configured error
func (s *Static) Set(id string, d models.CompetitorData) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = d
	delete(s.errs, id)
	return s
}

// Fail makes Fetch(id) return err
func (s *Static) Fail(id string, err error) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[id] = err
	return s
}

// Fetch implements BusinessDataProvider
func (s *Static) Fetch(ctx context.Context, businessID string) (*models.CompetitorData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[businessID]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := s.errs[businessID]; ok {
		return nil, err
	}
	d, ok := s.data[businessID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, businessID)
	}
	if d.ID == "" {
		d.ID = businessID
	}
	return &d, nil
}

// CallCount returns how many times id was fetched
func (s *Static) CallCount(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[id]
}
