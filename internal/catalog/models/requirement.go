package models

import (
	"sort"
	"strings"
	"time"

	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
)

// Applicability tags which assignment roles a requirement binds.
type Applicability string

const (
	ApplicabilityRegular Applicability = "regular"
	ApplicabilityLead    Applicability = "lead"
	ApplicabilityBoth    Applicability = "both"
)

func ParseApplicability(raw string) (Applicability, error) {
	if raw == "" {
		return ApplicabilityBoth, nil
	}
	switch Applicability(raw) {
	case ApplicabilityRegular, ApplicabilityLead, ApplicabilityBoth:
		return Applicability(raw), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "applicability must be regular, lead or both")
	}
}

// AppliesTo reports whether a requirement with this tag binds the given role.
// Leads see lead+both, regulars see regular+both.
func (a Applicability) AppliesTo(role Role) bool {
	if a == ApplicabilityBoth {
		return true
	}
	return string(a) == string(role)
}

// Requirement is one immutable checklist item attached to an offering.
//
// Requirements are never edited once published: assignments record check-offs
// against a specific requirement id, and silently editing the text would
// invalidate historical compliance evidence. Edits are modeled as retire old,
// create new, link both directions (Replaces / ReplacedBy).
//
// Invariants:
//   - a retired requirement can never be checked off again
//   - Order is the one mutable field (display metadata, not content)
type Requirement struct {
	ID               id.RequirementID  `json:"id"`
	OfferingID       id.OfferingID     `json:"offering_id"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Applicability    Applicability     `json:"applicability"`
	Order            *int              `json:"order,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	CreatedBy        string            `json:"created_by"`
	RetiredAt        *time.Time        `json:"retired_at,omitempty"`
	RetiredBy        string            `json:"retired_by,omitempty"`
	RetirementReason string            `json:"retirement_reason,omitempty"`
	Replaces         *id.RequirementID `json:"replaces,omitempty"`
	ReplacedBy       *id.RequirementID `json:"replaced_by,omitempty"`
}

func NewRequirement(reqID id.RequirementID, offeringID id.OfferingID, title string, applicability Applicability, order *int, createdBy string, now time.Time) (*Requirement, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requirement title cannot be empty")
	}
	if offeringID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requirement must belong to an offering")
	}
	if createdBy == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requirement creator is required")
	}
	if applicability == "" {
		applicability = ApplicabilityBoth
	}
	return &Requirement{
		ID:            reqID,
		OfferingID:    offeringID,
		Title:         title,
		Applicability: applicability,
		Order:         order,
		CreatedAt:     now,
		CreatedBy:     createdBy,
	}, nil
}

func (r *Requirement) IsRetired() bool {
	return r.RetiredAt != nil
}

func (r *Requirement) CanRetire() error {
	if r.IsRetired() {
		return dErrors.New(dErrors.CodeInvalidTransition, "requirement is already retired")
	}
	return nil
}

func (r *Requirement) ApplyRetirement(now time.Time, retiredBy, reason string) {
	r.RetiredAt = &now
	r.RetiredBy = retiredBy
	if reason == "" {
		reason = "No longer needed"
	}
	r.RetirementReason = reason
}

// SortForDisplay orders requirements by explicit order ascending, unordered
// items after ordered ones, ties broken by creation time.
func SortForDisplay(reqs []*Requirement) {
	sort.SliceStable(reqs, func(i, j int) bool {
		a, b := reqs[i], reqs[j]
		switch {
		case a.Order != nil && b.Order != nil:
			if *a.Order != *b.Order {
				return *a.Order < *b.Order
			}
			return a.CreatedAt.Before(b.CreatedAt)
		case a.Order != nil:
			return true
		case b.Order != nil:
			return false
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
}

// RequirementHistory is the replacement chain around one requirement.
type RequirementHistory struct {
	Current    *Requirement `json:"current"`
	Replaced   *Requirement `json:"replaced,omitempty"`
	ReplacedBy *Requirement `json:"replaced_by,omitempty"`
}
