// Package offering provides stores for service offerings.
package offering

import (
	"context"
	"sort"
	"sync"

	"experthub/internal/catalog/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
)

type InMemory struct {
	mu        sync.RWMutex
	offerings map[id.OfferingID]*models.ServiceOffering
}

func NewInMemory() *InMemory {
	return &InMemory{offerings: make(map[id.OfferingID]*models.ServiceOffering)}
}

func (s *InMemory) Create(_ context.Context, offering *models.ServiceOffering) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *offering
	s.offerings[offering.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, offeringID id.OfferingID) (*models.ServiceOffering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offering, ok := s.offerings[offeringID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *offering
	return &cp, nil
}

func (s *InMemory) ListActive(_ context.Context) ([]*models.ServiceOffering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(o *models.ServiceOffering) bool { return o.Active }), nil
}

func (s *InMemory) ListActiveByParent(_ context.Context, parentID id.ParentID) ([]*models.ServiceOffering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(o *models.ServiceOffering) bool {
		return o.Active && o.ParentID == parentID
	}), nil
}

func (s *InMemory) Execute(_ context.Context, offeringID id.OfferingID, validate func(*models.ServiceOffering) error, mutate func(*models.ServiceOffering)) (*models.ServiceOffering, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offering, ok := s.offerings[offeringID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(offering); err != nil {
		return nil, err
	}
	mutate(offering)
	cp := *offering
	return &cp, nil
}

func (s *InMemory) collect(keep func(*models.ServiceOffering) bool) []*models.ServiceOffering {
	var offerings []*models.ServiceOffering
	for _, offering := range s.offerings {
		if !keep(offering) {
			continue
		}
		cp := *offering
		offerings = append(offerings, &cp)
	}
	sort.Slice(offerings, func(i, j int) bool {
		return offerings[i].CreatedAt.Before(offerings[j].CreatedAt)
	})
	return offerings
}
