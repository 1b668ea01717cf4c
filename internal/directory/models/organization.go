package models

import (
	"strings"
	"time"

	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
)

type OrgStatus string

const (
	OrgStatusActive   OrgStatus = "active"
	OrgStatusInactive OrgStatus = "inactive"
)

// CanTransitionTo reports whether the status may change to target. The only
// legal moves are active ↔ inactive.
func (s OrgStatus) CanTransitionTo(target OrgStatus) bool {
	switch s {
	case OrgStatusActive:
		return target == OrgStatusInactive
	case OrgStatusInactive:
		return target == OrgStatusActive
	default:
		return false
	}
}

// Organization is a customer entity that experts author CVs under.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - Status is either active or inactive
type Organization struct {
	ID        id.OrgID  `json:"id"`
	Name      string    `json:"name"`
	Status    OrgStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Organization) IsActive() bool {
	return o.Status == OrgStatusActive
}

func (o *Organization) CanDeactivate() error {
	if !o.Status.CanTransitionTo(OrgStatusInactive) {
		return dErrors.New(dErrors.CodeInvariantViolation, "organization is already inactive")
	}
	return nil
}

func (o *Organization) ApplyDeactivation(now time.Time) {
	o.Status = OrgStatusInactive
	o.UpdatedAt = now
}

func NewOrganization(orgID id.OrgID, name string, now time.Time) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization name must be 128 characters or less")
	}
	return &Organization{
		ID:        orgID,
		Name:      name,
		Status:    OrgStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
