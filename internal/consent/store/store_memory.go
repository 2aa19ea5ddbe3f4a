package store

import (
	"context"
	"sync"
	"time"

	"hie-gateway/internal/consent/models"
	id "hie-gateway/pkg/domain"
	"hie-gateway/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	consents map[id.ConsentID]models.Request
}

func New() *InMemoryStore {
	return &InMemoryStore{consents: make(map[id.ConsentID]models.Request)}
}

func (s *InMemoryStore) Create(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consents[req.ID]; ok {
		return sentinel.ErrConflict
	}
	s.consents[req.ID] = *req
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, consentID id.ConsentID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.consents[consentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &req, nil
}

// SetStatus moves the consent to status and reports whether it changed.
func (s *InMemoryStore) SetStatus(_ context.Context, consentID id.ConsentID, to models.Status, now time.Time) (*models.Request, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.consents[consentID]
	if !ok {
		return nil, false, sentinel.ErrNotFound
	}
	changed, err := nextStatus(&req, to)
	if err != nil {
		return nil, false, err
	}
	if changed {
		req.Status = to
		req.UpdatedAt = now
		s.consents[consentID] = req
	}
	return &req, changed, nil
}
