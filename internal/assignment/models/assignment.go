package models

import (
	"strings"
	"time"

	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
)

// RequirementCheckoff records that an admin verified one requirement for
// this assignment. The list upserts by requirement id.
type RequirementCheckoff struct {
	RequirementID id.RequirementID `json:"requirement_id"`
	CheckedBy     string           `json:"checked_by"`
	CheckedAt     time.Time        `json:"checked_at"`
	Note          string           `json:"note,omitempty"`
}

// Assignment links one CV version to one service offering and carries two
// independent sub-machines: the admin review decision and the training
// obligation.
//
// Invariants:
//   - at most one assignment per (CV, offering) pair
//   - created and deleted only while the owning CV is in draft
//   - review status freezes once the owning CV reaches its terminal locked
//     status (enforced by the coordinator, which owns the CV lock)
type Assignment struct {
	ID       id.AssignmentID `json:"id"`
	UserID   id.UserID       `json:"user_id"`
	OrgID    id.OrgID        `json:"organization_id"`
	CVID     id.CVID         `json:"cv_id"`
	Offering OfferingRef     `json:"offering_id"`
	Role     Role            `json:"role"`

	ReviewStatus    ReviewStatus `json:"review_status"`
	ReviewedAt      *time.Time   `json:"reviewed_at,omitempty"`
	ReviewedBy      string       `json:"reviewed_by,omitempty"`
	ReviewNotes     string       `json:"review_notes,omitempty"`
	ApprovedAt      *time.Time   `json:"approved_at,omitempty"`
	ApprovedBy      string       `json:"approved_by,omitempty"`
	RejectedAt      *time.Time   `json:"rejected_at,omitempty"`
	RejectedBy      string       `json:"rejected_by,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`

	TrainingStatus      TrainingStatus      `json:"training_status,omitempty"`
	TrainingInvitedAt   *time.Time          `json:"training_invited_at,omitempty"`
	TrainingStartedAt   *time.Time          `json:"training_started_at,omitempty"`
	TrainingCompletedAt *time.Time          `json:"training_completed_at,omitempty"`
	QualificationID     *id.QualificationID `json:"qualification_id,omitempty"`
	QualifiedAt         *time.Time          `json:"qualified_at,omitempty"`

	Checkoffs []RequirementCheckoff `json:"requirement_checkoffs,omitempty"`

	AssignedBy string    `json:"assigned_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewAssignment(assignmentID id.AssignmentID, userID id.UserID, orgID id.OrgID, cvID id.CVID, offering OfferingRef, role Role, assignedBy string, now time.Time) (*Assignment, error) {
	if userID.IsNil() || orgID.IsNil() || cvID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "assignment must reference a user, organization and cv")
	}
	if strings.TrimSpace(assignedBy) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "assigning actor is required")
	}
	if role == "" {
		role = RoleRegular
	}
	return &Assignment{
		ID:           assignmentID,
		UserID:       userID,
		OrgID:        orgID,
		CVID:         cvID,
		Offering:     offering,
		Role:         role,
		ReviewStatus: ReviewPending,
		AssignedBy:   assignedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsQualified reports whether this assignment satisfies training-gated
// rules.
func (a *Assignment) IsQualified() bool {
	return a.TrainingStatus.IsQualified()
}

// Decision is a tagged review transition. Each variant produces a fully
// typed update for its target status, clearing the fields of the state being
// left rather than patching arbitrary columns.
type Decision interface {
	Target() ReviewStatus
	apply(a *Assignment, now time.Time)
}

type Approve struct {
	ReviewedBy string
	Notes      string
}

func (Approve) Target() ReviewStatus { return ReviewApproved }

func (d Approve) apply(a *Assignment, now time.Time) {
	a.clearDecision()
	a.ReviewStatus = ReviewApproved
	a.ReviewedAt = &now
	a.ReviewedBy = d.ReviewedBy
	a.ReviewNotes = d.Notes
	a.ApprovedAt = &now
	a.ApprovedBy = d.ReviewedBy
}

type Reject struct {
	ReviewedBy string
	Reason     string
	Notes      string
}

func (Reject) Target() ReviewStatus { return ReviewRejected }

func (d Reject) apply(a *Assignment, now time.Time) {
	a.clearDecision()
	a.ReviewStatus = ReviewRejected
	a.ReviewedAt = &now
	a.ReviewedBy = d.ReviewedBy
	a.ReviewNotes = d.Notes
	a.RejectedAt = &now
	a.RejectedBy = d.ReviewedBy
	a.RejectionReason = d.Reason
}

// Revert returns the assignment to pending_review, clearing every decision
// field.
type Revert struct {
	ReviewedBy string
}

func (Revert) Target() ReviewStatus { return ReviewPending }

func (d Revert) apply(a *Assignment, _ time.Time) {
	a.clearDecision()
	a.ReviewStatus = ReviewPending
}

func (a *Assignment) clearDecision() {
	a.ReviewedAt = nil
	a.ReviewedBy = ""
	a.ReviewNotes = ""
	a.ApprovedAt = nil
	a.ApprovedBy = ""
	a.RejectedAt = nil
	a.RejectedBy = ""
	a.RejectionReason = ""
}

// CanDecide validates the review transition the decision encodes.
func (a *Assignment) CanDecide(d Decision) error {
	if !a.ReviewStatus.CanTransitionTo(d.Target()) {
		return dErrors.New(dErrors.CodeInvalidTransition, "assignment is already "+string(d.Target()))
	}
	return nil
}

// ApplyDecision executes the transition. Call CanDecide first.
func (a *Assignment) ApplyDecision(d Decision, now time.Time) {
	d.apply(a, now)
	a.UpdatedAt = now
}

func (a *Assignment) CanInviteTraining() error {
	if a.ReviewStatus != ReviewApproved {
		return dErrors.New(dErrors.CodeInvalidTransition, "training applies only to approved assignments")
	}
	if !a.TrainingStatus.CanTransitionTo(TrainingInvited) {
		return dErrors.New(dErrors.CodeInvalidTransition, "training cannot be invited from status "+string(a.TrainingStatus))
	}
	return nil
}

func (a *Assignment) ApplyTrainingInvite(now time.Time) {
	a.TrainingStatus = TrainingInvited
	a.TrainingInvitedAt = &now
	a.UpdatedAt = now
}

func (a *Assignment) CanStartTraining() error {
	if a.ReviewStatus != ReviewApproved {
		return dErrors.New(dErrors.CodeInvalidTransition, "training applies only to approved assignments")
	}
	if !a.TrainingStatus.CanTransitionTo(TrainingInProgress) {
		return dErrors.New(dErrors.CodeInvalidTransition, "training cannot start from status "+string(a.TrainingStatus))
	}
	return nil
}

func (a *Assignment) ApplyTrainingStart(now time.Time) {
	a.TrainingStatus = TrainingInProgress
	a.TrainingStartedAt = &now
	a.UpdatedAt = now
}

func (a *Assignment) CanCompleteTraining(passed bool) error {
	target := TrainingPassed
	if !passed {
		target = TrainingFailed
	}
	if !a.TrainingStatus.CanTransitionTo(target) {
		return dErrors.New(dErrors.CodeInvalidTransition, "training cannot complete from status "+string(a.TrainingStatus))
	}
	return nil
}

func (a *Assignment) ApplyTrainingComplete(passed bool, now time.Time) {
	if passed {
		a.TrainingStatus = TrainingPassed
	} else {
		a.TrainingStatus = TrainingFailed
	}
	a.TrainingCompletedAt = &now
	a.UpdatedAt = now
}

// ApplyTrainingResolution sets the lock-time training outcome: not_required
// with the existing qualification attached, or required when the expert
// still has to train.
func (a *Assignment) ApplyTrainingResolution(qualificationID *id.QualificationID, qualifiedAt *time.Time, now time.Time) {
	if qualificationID != nil {
		a.TrainingStatus = TrainingNotRequired
		a.QualificationID = qualificationID
		a.QualifiedAt = qualifiedAt
	} else {
		a.TrainingStatus = TrainingRequired
	}
	a.UpdatedAt = now
}

// SetCheckoff upserts one requirement check-off; checked=false removes it.
func (a *Assignment) SetCheckoff(requirementID id.RequirementID, checked bool, checkedBy, note string, now time.Time) {
	for i, existing := range a.Checkoffs {
		if existing.RequirementID == requirementID {
			if checked {
				a.Checkoffs[i] = RequirementCheckoff{RequirementID: requirementID, CheckedBy: checkedBy, CheckedAt: now, Note: note}
			} else {
				a.Checkoffs = append(a.Checkoffs[:i], a.Checkoffs[i+1:]...)
			}
			a.UpdatedAt = now
			return
		}
	}
	if checked {
		a.Checkoffs = append(a.Checkoffs, RequirementCheckoff{RequirementID: requirementID, CheckedBy: checkedBy, CheckedAt: now, Note: note})
		a.UpdatedAt = now
	}
}

// CheckoffFor returns the recorded check-off for a requirement, if any.
func (a *Assignment) CheckoffFor(requirementID id.RequirementID) (RequirementCheckoff, bool) {
	for _, c := range a.Checkoffs {
		if c.RequirementID == requirementID {
			return c, true
		}
	}
	return RequirementCheckoff{}, false
}
