// Package parent provides stores for service parents.
package parent

import (
	"context"
	"sort"
	"sync"

	"experthub/internal/catalog/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
)

type InMemory struct {
	mu      sync.RWMutex
	parents map[id.ParentID]*models.ServiceParent
}

func NewInMemory() *InMemory {
	return &InMemory{parents: make(map[id.ParentID]*models.ServiceParent)}
}

func (s *InMemory) Create(_ context.Context, parent *models.ServiceParent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *parent
	s.parents[parent.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, parentID id.ParentID) (*models.ServiceParent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parent, ok := s.parents[parentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *parent
	return &cp, nil
}

func (s *InMemory) ListActive(_ context.Context) ([]*models.ServiceParent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var parents []*models.ServiceParent
	for _, parent := range s.parents {
		if !parent.Active {
			continue
		}
		cp := *parent
		parents = append(parents, &cp)
	}
	sort.Slice(parents, func(i, j int) bool {
		return parents[i].CreatedAt.Before(parents[j].CreatedAt)
	})
	return parents, nil
}
