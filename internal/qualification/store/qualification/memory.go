// Package qualification provides stores for the global qualification
// registry.
package qualification

import (
	"context"
	"sort"
	"sync"

	"experthub/internal/qualification/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
)

// InMemory keeps qualifications in a map guarded by a mutex. Used in tests
// and development wiring.
type InMemory struct {
	mu             sync.RWMutex
	qualifications map[id.QualificationID]*models.Qualification
}

func NewInMemory() *InMemory {
	return &InMemory{qualifications: make(map[id.QualificationID]*models.Qualification)}
}

// CreateIfAbsent inserts a qualification unless the (user, offering) pair
// already holds one.
func (s *InMemory) CreateIfAbsent(_ context.Context, q *models.Qualification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.qualifications {
		if existing.UserID == q.UserID && existing.OfferingID == q.OfferingID {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *q
	s.qualifications[q.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, qualID id.QualificationID) (*models.Qualification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.qualifications[qualID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *InMemory) FindByUserOffering(_ context.Context, userID id.UserID, offeringID id.OfferingID) (*models.Qualification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.qualifications {
		if q.UserID == userID && q.OfferingID == offeringID {
			cp := *q
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListByUser(_ context.Context, userID id.UserID) ([]*models.Qualification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Qualification
	for _, q := range s.qualifications {
		if q.UserID == userID {
			cp := *q
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) Delete(_ context.Context, qualID id.QualificationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.qualifications[qualID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.qualifications, qualID)
	return nil
}
