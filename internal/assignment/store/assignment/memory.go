// Package assignment provides stores for CV service assignments.
package assignment

import (
	"context"
	"sort"
	"sync"

	"experthub/internal/assignment/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
)

// InMemory keeps assignments in a map guarded by a mutex. Used in tests and
// development wiring.
type InMemory struct {
	mu          sync.RWMutex
	assignments map[id.AssignmentID]*models.Assignment
}

func NewInMemory() *InMemory {
	return &InMemory{assignments: make(map[id.AssignmentID]*models.Assignment)}
}

// Create inserts an assignment, enforcing one per (CV, offering) pair for
// assigned offerings.
func (s *InMemory) Create(_ context.Context, a *models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Offering.IsAssigned() {
		for _, existing := range s.assignments {
			if existing.CVID == a.CVID && existing.Offering.IsAssigned() && existing.Offering.ID() == a.Offering.ID() {
				return sentinel.ErrAlreadyUsed
			}
		}
	}
	s.assignments[a.ID] = clone(a)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, assignmentID id.AssignmentID) (*models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[assignmentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(a), nil
}

func (s *InMemory) List(_ context.Context, filter models.ListFilter) ([]*models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Assignment
	for _, a := range s.assignments {
		if filter.Matches(a) {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete removes an assignment and returns it as it stood at removal, so
// callers can settle counters from the authoritative state.
func (s *InMemory) Delete(_ context.Context, assignmentID id.AssignmentID) (*models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	delete(s.assignments, assignmentID)
	return clone(a), nil
}

// Execute atomically validates and mutates an assignment while holding the
// store lock, mirroring the postgres store's SELECT FOR UPDATE semantics.
func (s *InMemory) Execute(_ context.Context, assignmentID id.AssignmentID, validate func(*models.Assignment) error, mutate func(*models.Assignment)) (*models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(a); err != nil {
		return nil, err
	}
	mutate(a)
	return clone(a), nil
}

func clone(a *models.Assignment) *models.Assignment {
	cp := *a
	if a.Checkoffs != nil {
		cp.Checkoffs = append([]models.RequirementCheckoff(nil), a.Checkoffs...)
	}
	return &cp
}
