// Package org provides stores for the organization directory.
package org

import (
	"context"
	"strings"
	"sync"

	"experthub/internal/directory/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
)

type InMemory struct {
	mu   sync.RWMutex
	orgs map[id.OrgID]*models.Organization
}

func NewInMemory() *InMemory {
	return &InMemory{orgs: make(map[id.OrgID]*models.Organization)}
}

func (s *InMemory) CreateIfNameAvailable(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orgs {
		if strings.EqualFold(existing.Name, org.Name) {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, orgID id.OrgID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[orgID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orgs := make([]*models.Organization, 0, len(s.orgs))
	for _, org := range s.orgs {
		cp := *org
		orgs = append(orgs, &cp)
	}
	return orgs, nil
}

func (s *InMemory) Execute(_ context.Context, orgID id.OrgID, validate func(*models.Organization) error, mutate func(*models.Organization)) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[orgID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(org); err != nil {
		return nil, err
	}
	mutate(org)
	cp := *org
	return &cp, nil
}
