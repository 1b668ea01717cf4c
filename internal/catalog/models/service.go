// Package models holds the service catalog aggregates: parents, offerings
// and their requirement checklists.
package models

import (
	"strings"
	"time"

	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
)

// Role is the capacity an expert holds on an assignment. Lead roles carry
// stricter qualification requirements and gate an organization's ability to
// activate a service.
type Role string

const (
	RoleLead    Role = "lead"
	RoleRegular Role = "regular"
)

func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleLead, RoleRegular:
		return Role(raw), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "role must be lead or regular")
	}
}

// ServiceParent groups the versions of one service line.
type ServiceParent struct {
	ID          id.ParentID `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func NewServiceParent(parentID id.ParentID, name, description string, now time.Time) (*ServiceParent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "service parent name cannot be empty")
	}
	return &ServiceParent{
		ID:          parentID,
		Name:        name,
		Description: description,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ServiceOffering is one immutable service version assignments target,
// e.g. "Assessment V2". Offerings are never edited after release; a new
// version supersedes them and the old one is deprecated.
type ServiceOffering struct {
	ID           id.OfferingID `json:"id"`
	ParentID     id.ParentID   `json:"parent_id"`
	Version      string        `json:"version"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Active       bool          `json:"active"`
	ReleasedAt   time.Time     `json:"released_at"`
	DeprecatedAt *time.Time    `json:"deprecated_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func NewServiceOffering(offeringID id.OfferingID, parentID id.ParentID, version, name, description string, now time.Time) (*ServiceOffering, error) {
	name = strings.TrimSpace(name)
	version = strings.TrimSpace(version)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "offering name cannot be empty")
	}
	if version == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "offering version cannot be empty")
	}
	if parentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "offering requires a service parent")
	}
	return &ServiceOffering{
		ID:          offeringID,
		ParentID:    parentID,
		Version:     version,
		Name:        name,
		Description: description,
		Active:      true,
		ReleasedAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (o *ServiceOffering) CanDeprecate() error {
	if !o.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "offering is already deprecated")
	}
	return nil
}

func (o *ServiceOffering) ApplyDeprecation(now time.Time) {
	o.Active = false
	o.DeprecatedAt = &now
	o.UpdatedAt = now
}
