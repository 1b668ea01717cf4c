// Package lifecycle coordinates review decisions across the CV and
// assignment modules. The coordinator owns the CV lock during a decision:
// assignment update, pending counter maintenance, auto-lock and lock-time
// training resolution all commit in one transaction.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	amodels "experthub/internal/assignment/models"
	cvmodels "experthub/internal/cv/models"
	"experthub/internal/lifecycle/metrics"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/platform/audit"
	"experthub/pkg/platform/sentinel"
	txcontext "experthub/pkg/platform/tx"
	"experthub/pkg/requestcontext"
)

// AssignmentStore is the slice of the assignment store the coordinator
// drives.
type AssignmentStore interface {
	FindByID(ctx context.Context, assignmentID id.AssignmentID) (*amodels.Assignment, error)
	List(ctx context.Context, filter amodels.ListFilter) ([]*amodels.Assignment, error)
	Execute(ctx context.Context, assignmentID id.AssignmentID, validate func(*amodels.Assignment) error, mutate func(*amodels.Assignment)) (*amodels.Assignment, error)
}

// CVStore is the slice of the CV store the coordinator drives.
type CVStore interface {
	FindByID(ctx context.Context, cvID id.CVID) (*cvmodels.CV, error)
	Execute(ctx context.Context, cvID id.CVID, validate func(*cvmodels.CV) error, mutate func(*cvmodels.CV)) (*cvmodels.CV, error)
}

// QualificationRecord is what lock-time resolution reads from the registry.
type QualificationRecord struct {
	ID       id.QualificationID
	PassedAt time.Time
}

// QualificationRegistry looks up existing qualifications at lock time.
// Find returns (nil, nil) when the pair holds no qualification.
type QualificationRegistry interface {
	Find(ctx context.Context, userID id.UserID, offeringID id.OfferingID) (*QualificationRecord, error)
}

// Notification is a best-effort lifecycle event for external systems.
type Notification struct {
	Kind         string               `json:"kind"`
	CVID         id.CVID              `json:"cv_id"`
	UserID       id.UserID            `json:"user_id"`
	OrgID        id.OrgID             `json:"organization_id"`
	AssignmentID *id.AssignmentID     `json:"assignment_id,omitempty"`
	OfferingID   *id.OfferingID       `json:"offering_id,omitempty"`
	Decision     string               `json:"decision,omitempty"`
	Training     []TrainingObligation `json:"training,omitempty"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

// TrainingObligation names one offering the expert still has to train for.
type TrainingObligation struct {
	AssignmentID id.AssignmentID `json:"assignment_id"`
	OfferingID   id.OfferingID   `json:"offering_id"`
}

const (
	NotificationAssignmentDecided = "assignment_decided"
	NotificationCVLocked          = "cv_locked"
	NotificationTrainingRequired  = "training_required"
)

// Notifier dispatches notifications after commit. Implementations must not
// block the decision path; failures are theirs to log.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Coordinator applies review decisions and the CV-level consequences.
type Coordinator struct {
	assignments    AssignmentStore
	cvs            CVStore
	registry       QualificationRegistry
	tx             txcontext.Runner
	notifier       Notifier
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(c *Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(c *Coordinator) {
		c.auditPublisher = publisher
	}
}

func WithTxRunner(runner txcontext.Runner) Option {
	return func(c *Coordinator) {
		c.tx = runner
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = notifier
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func New(assignments AssignmentStore, cvs CVStore, registry QualificationRegistry, opts ...Option) *Coordinator {
	c := &Coordinator{
		assignments: assignments,
		cvs:         cvs,
		registry:    registry,
		tx:          txcontext.NewPassthroughRunner(),
		tracer:      otel.Tracer("experthub/lifecycle"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lockOutcome carries what happened inside the decision transaction so the
// post-commit side effects fire exactly once.
type lockOutcome struct {
	assignment *amodels.Assignment
	cv         *cvmodels.CV
	locked     bool
	required   []TrainingObligation
}

// Decide applies a review decision to an assignment and maintains the CV's
// pending counter. When the last pending assignment is decided while the CV
// is under review, the CV locks and training obligations are resolved, all
// in the same transaction.
func (c *Coordinator) Decide(ctx context.Context, assignmentID id.AssignmentID, decision amodels.Decision) (*amodels.Assignment, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "lifecycle.decide", trace.WithAttributes(
		attribute.String("assignment.id", assignmentID.String()),
		attribute.String("decision.target", string(decision.Target())),
	))
	defer span.End()

	if assignmentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "assignment id is required")
	}

	var outcome lockOutcome
	err := c.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := c.assignments.FindByID(ctx, assignmentID)
		if err != nil {
			return c.translate(err, "assignment")
		}

		cv, err := c.cvs.FindByID(ctx, current.CVID)
		if err != nil {
			return c.translate(err, "cv")
		}
		if cv.Status == cvmodels.StatusLockedFinal {
			return dErrors.New(dErrors.CodeInvalidTransition, "cv is locked and its assignments can no longer be decided")
		}

		// The delta must come from the row-locked status, not the lookup
		// above: a concurrent decision may have moved the assignment out
		// of pending_review since that read.
		var delta int
		updated, err := c.assignments.Execute(ctx, assignmentID,
			func(a *amodels.Assignment) error { return a.CanDecide(decision) },
			func(a *amodels.Assignment) {
				delta = pendingDelta(a.ReviewStatus, decision.Target())
				a.ApplyDecision(decision, requestcontext.Now(ctx))
			},
		)
		if err != nil {
			return c.translate(err, "assignment")
		}
		outcome.assignment = updated

		cv, err = c.cvs.Execute(ctx, current.CVID,
			func(cv *cvmodels.CV) error {
				if cv.Status == cvmodels.StatusLockedFinal {
					return dErrors.New(dErrors.CodeInvalidTransition, "cv is locked and its assignments can no longer be decided")
				}
				return nil
			},
			func(cv *cvmodels.CV) {
				cv.PendingAssignmentCount += delta
				if cv.PendingAssignmentCount < 0 {
					cv.PendingAssignmentCount = 0
				}
				cv.UpdatedAt = requestcontext.Now(ctx)
				if cv.Status == cvmodels.StatusLockedForReview && cv.PendingAssignmentCount == 0 {
					cv.ApplyFinalLock(requestcontext.Actor(ctx), requestcontext.Now(ctx))
					outcome.locked = true
				}
			},
		)
		if err != nil {
			return c.translate(err, "cv")
		}
		outcome.cv = cv

		if outcome.locked {
			required, err := c.resolveTraining(ctx, cv.ID)
			if err != nil {
				return err
			}
			outcome.required = required
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c.afterDecision(ctx, decision, outcome)
	span.SetAttributes(attribute.Bool("cv.locked", outcome.locked))
	if c.metrics != nil {
		c.metrics.IncrementDecision(string(decision.Target()))
		c.metrics.ObserveDecide(start)
	}
	return outcome.assignment, nil
}

// EvaluateAutoLock re-checks the lock condition for a CV. Safe to call at
// any time: a CV that is already locked, not under review, or still waiting
// on decisions is left untouched.
func (c *Coordinator) EvaluateAutoLock(ctx context.Context, cvID id.CVID) (*cvmodels.CV, error) {
	if cvID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "cv id is required")
	}

	var outcome lockOutcome
	err := c.tx.RunInTx(ctx, func(ctx context.Context) error {
		cv, err := c.cvs.Execute(ctx, cvID,
			func(*cvmodels.CV) error { return nil },
			func(cv *cvmodels.CV) {
				if cv.Status == cvmodels.StatusLockedForReview && cv.PendingAssignmentCount == 0 {
					cv.ApplyFinalLock(requestcontext.Actor(ctx), requestcontext.Now(ctx))
					outcome.locked = true
				}
			},
		)
		if err != nil {
			return c.translate(err, "cv")
		}
		outcome.cv = cv

		if outcome.locked {
			required, err := c.resolveTraining(ctx, cv.ID)
			if err != nil {
				return err
			}
			outcome.required = required
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome.locked {
		c.afterLock(ctx, outcome)
	}
	return outcome.cv, nil
}

// resolveTraining runs the lock-time policy over every approved assignment
// of the CV: a registry hit resolves to not_required with the qualification
// attached, a miss resolves to required.
func (c *Coordinator) resolveTraining(ctx context.Context, cvID id.CVID) ([]TrainingObligation, error) {
	approved := amodels.ReviewApproved
	list, err := c.assignments.List(ctx, amodels.ListFilter{CVID: &cvID, ReviewStatus: &approved})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list approved assignments")
	}

	var required []TrainingObligation
	for _, a := range list {
		if a.TrainingStatus != "" {
			continue
		}
		if !a.Offering.IsAssigned() {
			// A shell record can lock through review but has nothing to
			// resolve against; training stays open until an offering exists.
			if _, err := c.applyResolution(ctx, a.ID, nil, nil); err != nil {
				return nil, err
			}
			continue
		}

		var record *QualificationRecord
		if c.registry != nil {
			record, err = c.registry.Find(ctx, a.UserID, a.Offering.ID())
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up qualification")
			}
		}

		if record != nil {
			passedAt := record.PassedAt
			if _, err := c.applyResolution(ctx, a.ID, &record.ID, &passedAt); err != nil {
				return nil, err
			}
			if c.metrics != nil {
				c.metrics.ObserveResolution(string(amodels.TrainingNotRequired))
			}
			continue
		}

		if _, err := c.applyResolution(ctx, a.ID, nil, nil); err != nil {
			return nil, err
		}
		required = append(required, TrainingObligation{AssignmentID: a.ID, OfferingID: a.Offering.ID()})
		if c.metrics != nil {
			c.metrics.ObserveResolution(string(amodels.TrainingRequired))
		}
	}
	return required, nil
}

func (c *Coordinator) applyResolution(ctx context.Context, assignmentID id.AssignmentID, qualID *id.QualificationID, qualifiedAt *time.Time) (*amodels.Assignment, error) {
	updated, err := c.assignments.Execute(ctx, assignmentID,
		func(*amodels.Assignment) error { return nil },
		func(a *amodels.Assignment) { a.ApplyTrainingResolution(qualID, qualifiedAt, requestcontext.Now(ctx)) },
	)
	if err != nil {
		return nil, c.translate(err, "assignment")
	}
	return updated, nil
}

// pendingDelta computes how the decision moves the CV's undecided counter.
func pendingDelta(from, to amodels.ReviewStatus) int {
	switch {
	case from == amodels.ReviewPending && to != amodels.ReviewPending:
		return -1
	case from != amodels.ReviewPending && to == amodels.ReviewPending:
		return 1
	default:
		return 0
	}
}

func (c *Coordinator) afterDecision(ctx context.Context, decision amodels.Decision, outcome lockOutcome) {
	a := outcome.assignment
	c.logAudit(ctx, decisionEvent(decision.Target()), a.UserID, a.ID.String(), string(decision.Target()))

	if c.notifier != nil {
		offeringID := offeringPtr(a)
		c.notifier.Notify(ctx, Notification{
			Kind:         NotificationAssignmentDecided,
			CVID:         a.CVID,
			UserID:       a.UserID,
			OrgID:        a.OrgID,
			AssignmentID: &a.ID,
			OfferingID:   offeringID,
			Decision:     string(decision.Target()),
			OccurredAt:   requestcontext.Now(ctx),
		})
	}

	if outcome.locked {
		c.afterLock(ctx, outcome)
	}
}

func (c *Coordinator) afterLock(ctx context.Context, outcome lockOutcome) {
	cv := outcome.cv
	c.logAudit(ctx, audit.EventCVFinalized, cv.UserID, cv.ID.String(), "")
	if c.logger != nil {
		c.logger.InfoContext(ctx, "cv locked after final decision",
			"cv_id", cv.ID,
			"user_id", cv.UserID,
			"training_required", len(outcome.required),
		)
	}
	if c.metrics != nil {
		c.metrics.IncrementAutoLock()
	}

	if c.notifier == nil {
		return
	}
	c.notifier.Notify(ctx, Notification{
		Kind:       NotificationCVLocked,
		CVID:       cv.ID,
		UserID:     cv.UserID,
		OrgID:      cv.OrgID,
		OccurredAt: requestcontext.Now(ctx),
	})
	if len(outcome.required) > 0 {
		c.notifier.Notify(ctx, Notification{
			Kind:       NotificationTrainingRequired,
			CVID:       cv.ID,
			UserID:     cv.UserID,
			OrgID:      cv.OrgID,
			Training:   outcome.required,
			OccurredAt: requestcontext.Now(ctx),
		})
	}
}

func decisionEvent(target amodels.ReviewStatus) audit.AuditEvent {
	switch target {
	case amodels.ReviewApproved:
		return audit.EventAssignmentApproved
	case amodels.ReviewRejected:
		return audit.EventAssignmentRejected
	default:
		return audit.EventAssignmentReverted
	}
}

func offeringPtr(a *amodels.Assignment) *id.OfferingID {
	if !a.Offering.IsAssigned() {
		return nil
	}
	offeringID := a.Offering.ID()
	return &offeringID
}

func (c *Coordinator) translate(err error, entity string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, entity+" not found")
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update "+entity)
}

func (c *Coordinator) logAudit(ctx context.Context, event audit.AuditEvent, userID id.UserID, subject, decision string) {
	if c.logger != nil {
		c.logger.InfoContext(ctx, string(event),
			"event", event,
			"log_type", "audit",
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if c.auditPublisher == nil {
		return
	}
	_ = c.auditPublisher.Emit(ctx, audit.Event{
		UserID:   userID,
		Subject:  subject,
		Action:   string(event),
		Decision: decision,
	})
}
