// Package requirement provides stores for the requirement catalog.
package requirement

import (
	"context"
	"sort"
	"sync"

	"experthub/internal/catalog/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
)

type InMemory struct {
	mu           sync.RWMutex
	requirements map[id.RequirementID]*models.Requirement
}

func NewInMemory() *InMemory {
	return &InMemory{requirements: make(map[id.RequirementID]*models.Requirement)}
}

func (s *InMemory) Create(_ context.Context, req *models.Requirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.requirements[req.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, reqID id.RequirementID) (*models.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requirements[reqID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *InMemory) ListByOffering(_ context.Context, offeringID id.OfferingID) ([]*models.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var reqs []*models.Requirement
	for _, req := range s.requirements {
		if req.OfferingID != offeringID {
			continue
		}
		cp := *req
		reqs = append(reqs, &cp)
	}
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
	})
	return reqs, nil
}

func (s *InMemory) Execute(_ context.Context, reqID id.RequirementID, validate func(*models.Requirement) error, mutate func(*models.Requirement)) (*models.Requirement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requirements[reqID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	mutate(req)
	cp := *req
	return &cp, nil
}
