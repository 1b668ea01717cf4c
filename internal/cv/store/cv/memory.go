// Package cv provides stores for expert CV versions.
package cv

import (
	"context"
	"sort"
	"sync"

	"experthub/internal/cv/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
)

// InMemory keeps CVs in a map guarded by a mutex. Used in tests and
// development wiring.
type InMemory struct {
	mu  sync.RWMutex
	cvs map[id.CVID]*models.CV
}

func NewInMemory() *InMemory {
	return &InMemory{cvs: make(map[id.CVID]*models.CV)}
}

// Create inserts a CV and assigns the next version number for its
// (user, organization) pair under the store lock.
func (s *InMemory) Create(_ context.Context, cv *models.CV) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	highest := 0
	for _, existing := range s.cvs {
		if existing.UserID == cv.UserID && existing.OrgID == cv.OrgID && existing.Version > highest {
			highest = existing.Version
		}
	}
	cv.Version = highest + 1
	cp := cloneCV(cv)
	s.cvs[cv.ID] = cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, cvID id.CVID) (*models.CV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cv, ok := s.cvs[cvID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneCV(cv), nil
}

// LatestByUserOrg returns the highest-version CV for the pair.
func (s *InMemory) LatestByUserOrg(_ context.Context, userID id.UserID, orgID id.OrgID) (*models.CV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.CV
	for _, cv := range s.cvs {
		if cv.UserID != userID || cv.OrgID != orgID {
			continue
		}
		if latest == nil || cv.Version > latest.Version {
			latest = cv
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneCV(latest), nil
}

// ListByUserOrg returns all versions for the pair, newest first.
func (s *InMemory) ListByUserOrg(_ context.Context, userID id.UserID, orgID id.OrgID) ([]*models.CV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cvs []*models.CV
	for _, cv := range s.cvs {
		if cv.UserID == userID && cv.OrgID == orgID {
			cvs = append(cvs, cloneCV(cv))
		}
	}
	sort.Slice(cvs, func(i, j int) bool { return cvs[i].Version > cvs[j].Version })
	return cvs, nil
}

// Execute atomically validates and mutates a CV while holding the store
// lock, mirroring the postgres store's SELECT FOR UPDATE semantics.
func (s *InMemory) Execute(_ context.Context, cvID id.CVID, validate func(*models.CV) error, mutate func(*models.CV)) (*models.CV, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cv, ok := s.cvs[cvID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(cv); err != nil {
		return nil, err
	}
	mutate(cv)
	return cloneCV(cv), nil
}

func cloneCV(cv *models.CV) *models.CV {
	cp := *cv
	cp.Content = cv.Content.Clone()
	return &cp
}
