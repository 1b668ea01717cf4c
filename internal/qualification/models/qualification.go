package models

import (
	"time"

	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
)

// Qualification is the global, cross-organization record that an expert has
// passed training for a service offering.
//
// Invariants:
//   - at most one qualification per (user, offering) pair
//   - immutable once created; corrections delete and recreate
type Qualification struct {
	ID                   id.QualificationID `json:"id"`
	UserID               id.UserID          `json:"user_id"`
	OfferingID           id.OfferingID      `json:"offering_id"`
	TrainingPassedAt     time.Time          `json:"training_passed_at"`
	OriginalAssignmentID *id.AssignmentID   `json:"original_assignment_id,omitempty"`
	OriginalOrgID        *id.OrgID          `json:"original_organization_id,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	CreatedBy            string             `json:"created_by,omitempty"`
}

func NewQualification(qualID id.QualificationID, userID id.UserID, offeringID id.OfferingID, passedAt time.Time, createdBy string, now time.Time) (*Qualification, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "qualification must belong to a user")
	}
	if offeringID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "qualification must reference an offering")
	}
	if passedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "training pass timestamp is required")
	}
	return &Qualification{
		ID:               qualID,
		UserID:           userID,
		OfferingID:       offeringID,
		TrainingPassedAt: passedAt,
		CreatedAt:        now,
		CreatedBy:        createdBy,
	}, nil
}
