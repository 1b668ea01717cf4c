// Package approval provides stores for organization service approvals.
package approval

import (
	"context"
	"sort"
	"sync"

	"experthub/internal/billing/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
)

// InMemory keeps approvals in a map guarded by a mutex. Used in tests and
// development wiring.
type InMemory struct {
	mu        sync.RWMutex
	approvals map[id.ApprovalID]*models.Approval
}

func NewInMemory() *InMemory {
	return &InMemory{approvals: make(map[id.ApprovalID]*models.Approval)}
}

// Create inserts an approval unless the (organization, offering) pair
// already holds one.
func (s *InMemory) Create(_ context.Context, a *models.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.approvals {
		if existing.OrgID == a.OrgID && existing.OfferingID == a.OfferingID {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *a
	s.approvals[a.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, approvalID id.ApprovalID) (*models.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.approvals[approvalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *InMemory) FindByOrgOffering(_ context.Context, orgID id.OrgID, offeringID id.OfferingID) (*models.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.approvals {
		if a.OrgID == orgID && a.OfferingID == offeringID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListByOrg(_ context.Context, orgID id.OrgID) ([]*models.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Approval
	for _, a := range s.approvals {
		if a.OrgID == orgID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListPaid returns every approval with a payment on record, for the renewal
// report.
func (s *InMemory) ListPaid(_ context.Context) ([]*models.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Approval
	for _, a := range s.approvals {
		if a.PaidAt != nil && a.ExpiresAt != nil {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	return out, nil
}

// Execute runs an atomic read-validate-mutate cycle on one approval.
func (s *InMemory) Execute(_ context.Context, approvalID id.ApprovalID, validate func(*models.Approval) error, mutate func(*models.Approval)) (*models.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[approvalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(a); err != nil {
		return nil, err
	}
	mutate(a)
	cp := *a
	return &cp, nil
}
