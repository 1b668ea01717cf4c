package models

import (
	"strings"

	dErrors "experthub/pkg/domain-errors"
)

// CVStatus is the lifecycle state of one CV version.
//
// The machine is linear with a single loop:
//
//	draft → completed → payment_pending → paid → locked_for_review → locked_final
//	                                  locked_for_review ⇄ unlocked_for_edits
//
// completed may also fall back to draft when an edit invalidates the content,
// and may jump straight to locked_for_review for the review-before-payment
// flow. locked_final is terminal.
type CVStatus string

const (
	StatusDraft            CVStatus = "draft"
	StatusCompleted        CVStatus = "completed"
	StatusPaymentPending   CVStatus = "payment_pending"
	StatusPaid             CVStatus = "paid"
	StatusLockedForReview  CVStatus = "locked_for_review"
	StatusUnlockedForEdits CVStatus = "unlocked_for_edits"
	StatusLockedFinal      CVStatus = "locked_final"
)

var cvTransitions = map[CVStatus][]CVStatus{
	StatusDraft:            {StatusCompleted},
	StatusCompleted:        {StatusDraft, StatusPaymentPending, StatusLockedForReview},
	StatusPaymentPending:   {StatusPaid},
	StatusPaid:             {StatusLockedForReview},
	StatusLockedForReview:  {StatusUnlockedForEdits, StatusLockedFinal},
	StatusUnlockedForEdits: {StatusLockedForReview},
	StatusLockedFinal:      {},
}

func ParseCVStatus(raw string) (CVStatus, error) {
	status := CVStatus(raw)
	if _, ok := cvTransitions[status]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown cv status: "+raw)
	}
	return status, nil
}

// CanTransitionTo reports whether the machine permits moving to target.
func (s CVStatus) CanTransitionTo(target CVStatus) bool {
	for _, allowed := range cvTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// CanEditContent reports whether experience/education/training sections may
// be mutated in this status.
func (s CVStatus) CanEditContent() bool {
	switch s {
	case StatusDraft, StatusCompleted, StatusUnlockedForEdits:
		return true
	default:
		return false
	}
}

// CanEditServices reports whether assignments may be attached or removed.
// Service selection freezes earlier than content: the assignment set under
// review is fixed as soon as the CV leaves draft.
func (s CVStatus) CanEditServices() bool {
	return s == StatusDraft
}

// IsLocked reports whether the status belongs to the locked family. A new
// version created on top of a locked CV copies its content forward.
func (s CVStatus) IsLocked() bool {
	return strings.HasPrefix(string(s), "locked")
}

// IsTerminal reports whether no further transitions exist.
func (s CVStatus) IsTerminal() bool {
	return s == StatusLockedFinal
}
