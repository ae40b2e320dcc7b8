package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"titulaciones/internal/titulacion/models"
	"titulaciones/pkg/platform/sentinel"
)

// InMemoryTitulacionStore keeps records for the process lifetime.
type InMemoryTitulacionStore struct {
	mu      sync.RWMutex
	records map[string]models.Titulacion
}

func NewInMemoryTitulacionStore() *InMemoryTitulacionStore {
	return &InMemoryTitulacionStore{records: make(map[string]models.Titulacion)}
}

// Seed inserts records whose code is not stored yet. Existing rows win.
func (s *InMemoryTitulacionStore) Seed(_ context.Context, records []models.Titulacion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if _, ok := s.records[r.CodigoTitulacion]; !ok {
			s.records[r.CodigoTitulacion] = r
		}
	}
	return nil
}

func (s *InMemoryTitulacionStore) List(_ context.Context) ([]models.Titulacion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Titulacion, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CodigoTitulacion < out[j].CodigoTitulacion })
	return out, nil
}

func (s *InMemoryTitulacionStore) FindByCode(_ context.Context, code string) (*models.Titulacion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[code]
	if !ok {
		return nil, fmt.Errorf("titulacion %s: %w", code, sentinel.ErrNotFound)
	}
	return &r, nil
}

// Update replaces the registry-owned fields of an existing record. Revocada is
// preserved. It reports false when nothing changed.
func (s *InMemoryTitulacionStore) Update(_ context.Context, record models.Titulacion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[record.CodigoTitulacion]
	if !ok {
		return false, fmt.Errorf("titulacion %s: %w", record.CodigoTitulacion, sentinel.ErrNotFound)
	}
	if current.ContentEquals(record) {
		return false, nil
	}
	record.Revocada = current.Revocada
	s.records[record.CodigoTitulacion] = record
	return true, nil
}

func (s *InMemoryTitulacionStore) MarkRevoked(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[code]
	if !ok {
		return fmt.Errorf("titulacion %s: %w", code, sentinel.ErrNotFound)
	}
	r.Revocada = true
	s.records[code] = r
	return nil
}
