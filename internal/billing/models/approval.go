// Package models holds the organization service approval aggregate: the
// commercial record that lets an organization deliver a service offering
// once it is approved, staffed with a qualified lead and paid up.
package models

import (
	"strings"
	"time"

	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
)

// ApprovalStatus is the administrative state of the approval record.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalSuspended ApprovalStatus = "suspended"
)

func ParseApprovalStatus(raw string) (ApprovalStatus, error) {
	switch ApprovalStatus(raw) {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalSuspended:
		return ApprovalStatus(raw), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown approval status: "+raw)
	}
}

// TrackerStatus is the derived readiness of the service for delivery.
type TrackerStatus string

const (
	TrackerNotApproved  TrackerStatus = "not_approved"
	TrackerAssignLead   TrackerStatus = "assign_lead"
	TrackerPayAnnualFee TrackerStatus = "pay_annual_fee"
	TrackerActive       TrackerStatus = "active"
)

// Approval records one organization's permission to deliver one offering.
type Approval struct {
	ID         id.ApprovalID  `json:"id"`
	OrgID      id.OrgID       `json:"organization_id"`
	OfferingID id.OfferingID  `json:"offering_id"`
	Status     ApprovalStatus `json:"status"`

	PaymentReference string     `json:"payment_reference,omitempty"`
	PaymentAmount    int64      `json:"payment_amount,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

func NewApproval(approvalID id.ApprovalID, orgID id.OrgID, offeringID id.OfferingID, status ApprovalStatus, createdBy string, now time.Time) (*Approval, error) {
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "approval must belong to an organization")
	}
	if offeringID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "approval must reference an offering")
	}
	if status == "" {
		status = ApprovalPending
	}
	return &Approval{
		ID:         approvalID,
		OrgID:      orgID,
		OfferingID: offeringID,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatedBy:  createdBy,
	}, nil
}

// CanSetStatus validates an administrative status change.
func (a *Approval) CanSetStatus(status ApprovalStatus) error {
	if a.Status == status {
		return dErrors.New(dErrors.CodeInvalidTransition, "approval is already "+string(status))
	}
	return nil
}

func (a *Approval) SetStatus(status ApprovalStatus, now time.Time) {
	a.Status = status
	a.UpdatedAt = now
}

// CanPayAnnualFee validates the payment preconditions the approval itself
// can check. The qualified-lead gate lives in the service, which can see
// the assignments.
func (a *Approval) CanPayAnnualFee(reference string) error {
	if a.Status != ApprovalApproved {
		return dErrors.New(dErrors.CodeInvalidTransition, "annual fee requires an approved service record")
	}
	if strings.TrimSpace(reference) == "" {
		return dErrors.New(dErrors.CodeValidation, "a payment reference is required")
	}
	return nil
}

// ApplyAnnualFee records the payment and pushes expiry one year out.
func (a *Approval) ApplyAnnualFee(reference string, amount int64, now time.Time) {
	expires := now.AddDate(1, 0, 0)
	a.PaymentReference = reference
	a.PaymentAmount = amount
	a.PaidAt = &now
	a.ExpiresAt = &expires
	a.UpdatedAt = now
}

// IsPaid reports whether a non-expired payment is on record.
func (a *Approval) IsPaid(now time.Time) bool {
	return a.PaidAt != nil && !a.IsExpired(now)
}

func (a *Approval) IsExpired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// Tracker derives the readiness status from the approval and the presence
// of a qualified lead.
func (a *Approval) Tracker(hasQualifiedLead bool, now time.Time) TrackerStatus {
	if a.Status != ApprovalApproved {
		return TrackerNotApproved
	}
	if !hasQualifiedLead {
		return TrackerAssignLead
	}
	if !a.IsPaid(now) {
		return TrackerPayAnnualFee
	}
	return TrackerActive
}
