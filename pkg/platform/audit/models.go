// Package audit captures structured audit events emitted from domain logic.
// Events are transport-agnostic so stores and sinks can fan out.
package audit

import (
	"context"
	"time"

	id "experthub/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers credential decisions with contractual
	// significance: approvals, rejections, locks, qualifications.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions.
type Event struct {
	Timestamp time.Time
	UserID    id.UserID
	Subject   string
	Action    string
	Decision  string
	Reason    string
	// RequestID is the correlation ID from the HTTP request context.
	RequestID string
	// ActorID tracks who performed the action when different from UserID,
	// e.g. a staff reviewer acting on an expert's record.
	ActorID string
}

type AuditEvent string

const (
	// Directory events
	EventUserCreated        AuditEvent = "user_created"
	EventUserDeactivated    AuditEvent = "user_deactivated"
	EventOrganizationSaved  AuditEvent = "organization_saved"

	// Catalog events
	EventOfferingCreated    AuditEvent = "offering_created"
	EventRequirementCreated AuditEvent = "requirement_created"
	EventRequirementRetired AuditEvent = "requirement_retired"

	// CV events
	EventCVCreated          AuditEvent = "cv_created"
	EventCVCompleted        AuditEvent = "cv_completed"
	EventCVPaymentConfirmed AuditEvent = "cv_payment_confirmed"
	EventCVLocked           AuditEvent = "cv_locked"
	EventCVUnlocked         AuditEvent = "cv_unlocked"
	EventCVFinalized        AuditEvent = "cv_finalized"

	// Assignment events
	EventAssignmentCreated  AuditEvent = "assignment_created"
	EventAssignmentDeleted  AuditEvent = "assignment_deleted"
	EventAssignmentApproved AuditEvent = "assignment_approved"
	EventAssignmentRejected AuditEvent = "assignment_rejected"
	EventAssignmentReverted AuditEvent = "assignment_reverted"
	EventTrainingUpdated    AuditEvent = "training_updated"
	EventCheckoffRecorded   AuditEvent = "checkoff_recorded"

	// Qualification events
	EventQualificationCreated AuditEvent = "qualification_created"
	EventQualificationDeleted AuditEvent = "qualification_deleted"

	// Billing events
	EventApprovalRecorded AuditEvent = "approval_recorded"
	EventAnnualFeePaid    AuditEvent = "annual_fee_paid"
)

// eventCategories maps each audit event to its category. Events absent from
// the map default to operations.
var eventCategories = map[AuditEvent]EventCategory{
	EventCVLocked:             CategoryCompliance,
	EventCVUnlocked:           CategoryCompliance,
	EventCVFinalized:          CategoryCompliance,
	EventAssignmentApproved:   CategoryCompliance,
	EventAssignmentRejected:   CategoryCompliance,
	EventAssignmentReverted:   CategoryCompliance,
	EventQualificationCreated: CategoryCompliance,
	EventQualificationDeleted: CategoryCompliance,
	EventApprovalRecorded:     CategoryCompliance,
	EventAnnualFeePaid:        CategoryCompliance,
}

// Category returns the category for this event.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}

// Store is the persistence port for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
