package models

import (
	dErrors "experthub/pkg/domain-errors"
)

// Role is the capacity an expert holds on one assignment. Lead carries
// stricter qualification requirements and gates annual fee payment.
type Role string

const (
	RoleLead    Role = "lead"
	RoleRegular Role = "regular"
)

func ParseRole(raw string) (Role, error) {
	if raw == "" {
		return RoleRegular, nil
	}
	switch Role(raw) {
	case RoleLead, RoleRegular:
		return Role(raw), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "role must be lead or regular")
	}
}

// ReviewStatus is the admin decision state of one assignment. Decisions can
// be reversed in any direction until the owning CV reaches its terminal
// locked status; the freeze is enforced by the coordinator, not here.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending_review"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

func ParseReviewStatus(raw string) (ReviewStatus, error) {
	switch ReviewStatus(raw) {
	case ReviewPending, ReviewApproved, ReviewRejected:
		return ReviewStatus(raw), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown review status: "+raw)
	}
}

// CanTransitionTo permits any move between distinct review states.
func (s ReviewStatus) CanTransitionTo(target ReviewStatus) bool {
	return s != target
}

// TrainingStatus tracks the training obligation of an approved assignment.
//
// not_required and passed both satisfy the qualification predicate; failed
// permits unlimited retries back into in_progress.
type TrainingStatus string

const (
	TrainingNotRequired TrainingStatus = "not_required"
	TrainingRequired    TrainingStatus = "required"
	TrainingInvited     TrainingStatus = "invited"
	TrainingInProgress  TrainingStatus = "in_progress"
	TrainingPassed      TrainingStatus = "passed"
	TrainingFailed      TrainingStatus = "failed"
)

var trainingTransitions = map[TrainingStatus][]TrainingStatus{
	TrainingNotRequired: {},
	TrainingRequired:    {TrainingInvited},
	TrainingInvited:     {TrainingInProgress},
	TrainingInProgress:  {TrainingPassed, TrainingFailed},
	TrainingPassed:      {},
	TrainingFailed:      {TrainingInProgress},
}

func ParseTrainingStatus(raw string) (TrainingStatus, error) {
	status := TrainingStatus(raw)
	if _, ok := trainingTransitions[status]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown training status: "+raw)
	}
	return status, nil
}

func (s TrainingStatus) CanTransitionTo(target TrainingStatus) bool {
	for _, allowed := range trainingTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsQualified reports whether this training state satisfies training-gated
// business rules.
func (s TrainingStatus) IsQualified() bool {
	return s == TrainingNotRequired || s == TrainingPassed
}
