package models

import (
	"strings"
	"time"

	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
)

// CV is one versioned snapshot of an expert's credentials for one
// organization.
//
// Invariants:
//   - Version is strictly increasing per (user, organization), starting at 1
//   - content mutates only while Status.CanEditContent()
//   - PendingAssignmentCount equals the number of pending_review assignments
//     under this CV; it is maintained in the same transaction as every
//     assignment write so the auto-lock check never has to scan
//   - once Status is locked_final nothing on the record changes again
type CV struct {
	ID     id.CVID   `json:"id"`
	UserID id.UserID `json:"user_id"`
	OrgID  id.OrgID  `json:"organization_id"`

	Version int      `json:"version"`
	Status  CVStatus `json:"status"`
	Content Content  `json:"content"`

	PendingAssignmentCount int `json:"pending_assignment_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`

	PaymentReference string     `json:"payment_reference,omitempty"`
	PaymentAmount    int64      `json:"payment_amount,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`

	ReviewStartedAt *time.Time `json:"review_started_at,omitempty"`
	UnlockedAt      *time.Time `json:"unlocked_at,omitempty"`
	UnlockedBy      string     `json:"unlocked_by,omitempty"`
	UnlockReason    string     `json:"unlock_reason,omitempty"`

	LockedAt *time.Time `json:"locked_at,omitempty"`
	LockedBy string     `json:"locked_by,omitempty"`
}

func NewCV(cvID id.CVID, userID id.UserID, orgID id.OrgID, content Content, createdBy string, now time.Time) (*CV, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "cv must belong to a user")
	}
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "cv must belong to an organization")
	}
	if strings.TrimSpace(createdBy) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "cv creator is required")
	}
	return &CV{
		ID:        cvID,
		UserID:    userID,
		OrgID:     orgID,
		Status:    StatusDraft,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: createdBy,
	}, nil
}

// CanEditContent checks whether the content sections accept edits right now.
func (c *CV) CanEditContent() error {
	if !c.Status.CanEditContent() {
		return dErrors.New(dErrors.CodeInvalidTransition, "cv content is not editable in status "+string(c.Status))
	}
	return nil
}

// ApplyContentUpdate replaces the content sections. Entries an admin locked
// for review survive the update unchanged; lock flags arriving on the
// payload are ignored, they only change through SetItemReviewLock. While
// the CV sits in completed, an update that breaks structural validation
// drops it back to draft rather than leaving an invalid completed CV on
// record.
func (c *CV) ApplyContentUpdate(content Content, now time.Time) {
	content.stripReviewLocks()
	content.restoreLockedEntries(c.Content)
	c.Content = content
	if c.Status == StatusCompleted && len(content.ValidateForSubmission()) > 0 {
		c.Status = StatusDraft
		c.SubmittedAt = nil
	}
	c.UpdatedAt = now
}

// CanSubmit checks draft → completed, including structural validation.
func (c *CV) CanSubmit() error {
	if !c.Status.CanTransitionTo(StatusCompleted) {
		return dErrors.New(dErrors.CodeInvalidTransition, "cv cannot be submitted from status "+string(c.Status))
	}
	if errs := c.Content.ValidateForSubmission(); len(errs) > 0 {
		return dErrors.New(dErrors.CodeValidation, strings.Join(errs, "; "))
	}
	return nil
}

func (c *CV) ApplySubmission(now time.Time) {
	c.Status = StatusCompleted
	c.SubmittedAt = &now
	c.UpdatedAt = now
}

func (c *CV) CanInitiatePayment() error {
	if !c.Status.CanTransitionTo(StatusPaymentPending) || c.Status != StatusCompleted {
		return dErrors.New(dErrors.CodeInvalidTransition, "payment can only start on a completed cv")
	}
	return nil
}

func (c *CV) ApplyPaymentInitiated(reference string, amount int64, now time.Time) {
	c.Status = StatusPaymentPending
	c.PaymentReference = reference
	c.PaymentAmount = amount
	c.UpdatedAt = now
}

func (c *CV) CanConfirmPayment() error {
	if !c.Status.CanTransitionTo(StatusPaid) {
		return dErrors.New(dErrors.CodeInvalidTransition, "no pending payment on this cv")
	}
	return nil
}

func (c *CV) ApplyPaymentConfirmed(now time.Time) {
	c.Status = StatusPaid
	c.PaidAt = &now
	c.UpdatedAt = now
}

// CanStartReview checks the move into locked_for_review. Paid CVs enter
// review after payment confirmation; completed CVs may enter directly for
// the review-before-payment flow.
func (c *CV) CanStartReview() error {
	if !c.Status.CanTransitionTo(StatusLockedForReview) {
		return dErrors.New(dErrors.CodeInvalidTransition, "cv cannot enter review from status "+string(c.Status))
	}
	return nil
}

func (c *CV) ApplyReviewStarted(now time.Time) {
	c.Status = StatusLockedForReview
	if c.ReviewStartedAt == nil {
		c.ReviewStartedAt = &now
	}
	c.UpdatedAt = now
}

func (c *CV) CanUnlock() error {
	if c.Status != StatusLockedForReview {
		return dErrors.New(dErrors.CodeInvalidTransition, "only a cv under review can be unlocked for edits")
	}
	return nil
}

func (c *CV) ApplyUnlock(unlockedBy, reason string, now time.Time) {
	c.Status = StatusUnlockedForEdits
	c.UnlockedAt = &now
	c.UnlockedBy = unlockedBy
	c.UnlockReason = reason
	c.UpdatedAt = now
}

func (c *CV) CanResubmit() error {
	if c.Status != StatusUnlockedForEdits {
		return dErrors.New(dErrors.CodeInvalidTransition, "only an unlocked cv can be resubmitted for review")
	}
	return nil
}

func (c *CV) ApplyResubmission(now time.Time) {
	c.Status = StatusLockedForReview
	c.UpdatedAt = now
}

// CanFinalize checks the auto-lock guard: the CV must be under review with
// every assignment decided. PendingAssignmentCount carries the undecided
// count so no scan is needed here.
func (c *CV) CanFinalize() error {
	if c.Status == StatusLockedFinal {
		return dErrors.New(dErrors.CodeInvalidTransition, "cv is already locked")
	}
	if c.Status != StatusLockedForReview {
		return dErrors.New(dErrors.CodeInvalidTransition, "cv must be under review to lock")
	}
	if c.PendingAssignmentCount > 0 {
		return dErrors.New(dErrors.CodeInvalidTransition, "cv has undecided assignments")
	}
	return nil
}

func (c *CV) ApplyFinalLock(lockedBy string, now time.Time) {
	c.Status = StatusLockedFinal
	c.LockedAt = &now
	c.LockedBy = lockedBy
	c.UpdatedAt = now
}

// SetItemReviewLock toggles the per-entry review lock an admin uses to
// protect individual entries while the CV sits in locked_for_review.
// Section is one of experience, education, training.
func (c *CV) SetItemReviewLock(section string, index int, locked bool, now time.Time) error {
	if c.Status != StatusLockedForReview {
		return dErrors.New(dErrors.CodeInvalidTransition, "item review locks only apply while the cv is under review")
	}
	switch section {
	case "experience":
		if index < 0 || index >= len(c.Content.Experience) {
			return dErrors.New(dErrors.CodeInvalidInput, "experience entry index out of range")
		}
		c.Content.Experience[index].LockedForReview = locked
	case "education":
		if index < 0 || index >= len(c.Content.Education) {
			return dErrors.New(dErrors.CodeInvalidInput, "education entry index out of range")
		}
		c.Content.Education[index].LockedForReview = locked
	case "training":
		if index < 0 || index >= len(c.Content.TrainingQualifications) {
			return dErrors.New(dErrors.CodeInvalidInput, "training entry index out of range")
		}
		c.Content.TrainingQualifications[index].LockedForReview = locked
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unknown content section: "+section)
	}
	c.UpdatedAt = now
	return nil
}

// AssignmentCounts aggregates decision state over the assignments of one CV
// version, for the history view.
type AssignmentCounts struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
	Rejected int `json:"rejected"`
}

// HistoryEntry is one CV version plus its assignment decision summary.
type HistoryEntry struct {
	CV          *CV              `json:"cv"`
	Assignments AssignmentCounts `json:"assignments"`
}
