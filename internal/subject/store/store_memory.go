// Package store persists subjects.
//
// Error contract: Get returns sentinel.ErrNotFound for unknown ids. Create is
// insert-if-absent and reports whether the row was new.
package store

import (
	"context"
	"sync"

	"hie-gateway/internal/subject/models"
	id "hie-gateway/pkg/domain"
	"hie-gateway/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	subjects map[id.SubjectID]models.Subject
}

func New() *InMemoryStore {
	return &InMemoryStore{subjects: make(map[id.SubjectID]models.Subject)}
}

// Create inserts s unless the id exists and returns the stored row.
func (s *InMemoryStore) Create(_ context.Context, subject *models.Subject) (*models.Subject, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.subjects[subject.ID]; ok {
		return &existing, false, nil
	}
	s.subjects[subject.ID] = *subject
	stored := *subject
	return &stored, true, nil
}

func (s *InMemoryStore) Get(_ context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, ok := s.subjects[subjectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &subject, nil
}
