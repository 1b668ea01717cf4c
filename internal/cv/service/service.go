// Package service orchestrates the CV version lifecycle: creation with
// auto-copy from locked versions, content edits, submission, payment
// bookkeeping and the review lock loop.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"experthub/internal/cv/metrics"
	"experthub/internal/cv/models"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/platform/audit"
	"experthub/pkg/platform/sentinel"
	"experthub/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, cv *models.CV) error
	FindByID(ctx context.Context, cvID id.CVID) (*models.CV, error)
	LatestByUserOrg(ctx context.Context, userID id.UserID, orgID id.OrgID) (*models.CV, error)
	ListByUserOrg(ctx context.Context, userID id.UserID, orgID id.OrgID) ([]*models.CV, error)
	Execute(ctx context.Context, cvID id.CVID, validate func(*models.CV) error, mutate func(*models.CV)) (*models.CV, error)
}

// AssignmentSummary is the slice of assignment state the CV read paths
// surface next to a version.
type AssignmentSummary struct {
	ID             id.AssignmentID `json:"id"`
	OfferingID     id.OfferingID   `json:"offering_id,omitempty"`
	OfferingName   string          `json:"offering_name,omitempty"`
	Role           string          `json:"role"`
	ReviewStatus   string          `json:"review_status"`
	TrainingStatus string          `json:"training_status,omitempty"`
}

// AssignmentReader is the slice of the assignment module the CV read paths
// depend on.
type AssignmentReader interface {
	SummariesByCV(ctx context.Context, cvID id.CVID) ([]AssignmentSummary, error)
	CountsByCV(ctx context.Context, cvID id.CVID) (models.AssignmentCounts, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service orchestrates the CV lifecycle.
type Service struct {
	cvs            Store
	assignments    AssignmentReader
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithAssignmentReader(reader AssignmentReader) Option {
	return func(s *Service) {
		s.assignments = reader
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(cvs Store, opts ...Option) *Service {
	s := &Service{cvs: cvs}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateParams struct {
	UserID    id.UserID
	OrgID     id.OrgID
	Content   models.Content
	CreatedBy string
}

// Create opens the next CV version for a (user, organization) pair. When the
// latest prior version sits in a locked status its content is the certified
// baseline, so it is copied forward and the caller-supplied content ignored.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.CV, error) {
	start := time.Now()
	content := params.Content

	latest, err := s.cvs.LatestByUserOrg(ctx, params.UserID, params.OrgID)
	switch {
	case err == nil:
		if latest.Status.IsLocked() {
			content = latest.Content.Clone()
		}
	case errors.Is(err, sentinel.ErrNotFound):
		// first version for this pair
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load latest cv")
	}

	cv, err := models.NewCV(id.CVID(uuid.New()), params.UserID, params.OrgID, content, params.CreatedBy, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.cvs.Create(ctx, cv); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a concurrent cv version was created for this user and organization")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create cv")
	}

	if s.metrics != nil {
		s.metrics.IncrementCVCreated()
		s.metrics.ObserveCreate(start)
	}
	s.logAudit(ctx, audit.EventCVCreated, cv.UserID, cv.ID.String())
	return cv, nil
}

// UpdateContent replaces the content sections of an editable CV. A completed
// CV whose new content fails validation drops back to draft.
func (s *Service) UpdateContent(ctx context.Context, cvID id.CVID, content models.Content) (*models.CV, error) {
	if cvID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "cv id is required")
	}
	now := requestcontext.Now(ctx)
	cv, err := s.cvs.Execute(ctx, cvID,
		func(c *models.CV) error { return c.CanEditContent() },
		func(c *models.CV) { c.ApplyContentUpdate(content, now) },
	)
	if err != nil {
		return nil, s.translate(err, "cv")
	}
	return cv, nil
}

// Submit moves a draft to completed after structural validation.
func (s *Service) Submit(ctx context.Context, cvID id.CVID) (*models.CV, error) {
	if cvID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "cv id is required")
	}
	now := requestcontext.Now(ctx)
	cv, err := s.cvs.Execute(ctx, cvID,
		func(c *models.CV) error { return c.CanSubmit() },
		func(c *models.CV) { c.ApplySubmission(now) },
	)
	if err != nil {
		return nil, s.translate(err, "cv")
	}
	if s.metrics != nil {
		s.metrics.IncrementCVSubmitted()
		s.metrics.ObserveTransition(string(models.StatusDraft), string(models.StatusCompleted))
	}
	s.logAudit(ctx, audit.EventCVCompleted, cv.UserID, cv.ID.String())
	return cv, nil
}

// InitiatePayment records the external payment reference and parks the CV in
// payment_pending until the invoicing subsystem confirms.
func (s *Service) InitiatePayment(ctx context.Context, cvID id.CVID, reference string, amount int64) (*models.CV, error) {
	if cvID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "cv id is required")
	}
	if reference == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "payment reference is required")
	}
	now := requestcontext.Now(ctx)
	cv, err := s.cvs.Execute(ctx, cvID,
		func(c *models.CV) error { return c.CanInitiatePayment() },
		func(c *models.CV) { c.ApplyPaymentInitiated(reference, amount, now) },
	)
	if err != nil {
		return nil, s.translate(err, "cv")
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(models.StatusCompleted), string(models.StatusPaymentPending))
	}
	return cv, nil
}

// ConfirmPayment is driven by the invoicing subsystem. The CV lands in paid;
// review start is a separate trigger.
func (s *Service) ConfirmPayment(ctx context.Context, cvID id.CVID) (*models.CV, error) {
	if cvID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "cv id is required")
	}
	now := requestcontext.Now(ctx)
	cv, err := s.cvs.Execute(ctx, cvID,
		func(c *models.CV) error { return c.CanConfirmPayment() },
		func(c *models.CV) { c.ApplyPaymentConfirmed(now) },
	)
	if err != nil {
		return nil, s.translate(err, "cv")
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(models.StatusPaymentPending), string(models.StatusPaid))
	}
	s.logAudit(ctx, audit.EventCVPaymentConfirmed, cv.UserID, cv.ID.String())
	return cv, nil
}

// StartReview freezes content and enters locked_for_review. Allowed from
// paid, and from completed for the review-before-payment flow.
func (s *Service) StartReview(ctx context.Context, cvID id.CVID) (*models.CV, error) {
	if cvID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "cv id is required")
	}
	now := requestcontext.Now(ctx)
	var from models.CVStatus
	cv, err := s.cvs.Execute(ctx, cvID,
		func(c *models.CV) error {
			from = c.Status
			return c.CanStartReview()
		},
		func(c *models.CV) { c.ApplyReviewStarted(now) },
	)
	if err != nil {
		return nil, s.translate(err, "cv")
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(from), string(models.StatusLockedForReview))
	}
	s.logAudit(ctx, audit.EventCVLocked, cv.UserID, cv.ID.String())
	return cv, nil
}

// Unlock sends a CV under review back to the expert for corrections.
func (s *Service) Unlock(ctx context.Context, cvID id.CVID, unlockedBy, reason string) (*models.CV, error) {
	if cvID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "cv id is required")
	}
	if unlockedBy == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unlocking actor is required")
	}
	now := requestcontext.Now(ctx)
	cv, err := s.cvs.Execute(ctx, cvID,
		func(c *models.CV) error { return c.CanUnlock() },
		func(c *models.CV) { c.ApplyUnlock(unlockedBy, reason, now) },
	)
	if err != nil {
		return nil, s.translate(err, "cv")
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(models.StatusLockedForReview), string(models.StatusUnlockedForEdits))
	}
	s.logAudit(ctx, audit.EventCVUnlocked, cv.UserID, cv.ID.String())
	return cv, nil
}

// Resubmit returns an unlocked CV to review. The loop may repeat.
func (s *Service) Resubmit(ctx context.Context, cvID id.CVID) (*models.CV, error) {
	if cvID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "cv id is required")
	}
	now := requestcontext.Now(ctx)
	cv, err := s.cvs.Execute(ctx, cvID,
		func(c *models.CV) error { return c.CanResubmit() },
		func(c *models.CV) { c.ApplyResubmission(now) },
	)
	if err != nil {
		return nil, s.translate(err, "cv")
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(models.StatusUnlockedForEdits), string(models.StatusLockedForReview))
	}
	s.logAudit(ctx, audit.EventCVLocked, cv.UserID, cv.ID.String())
	return cv, nil
}

// SetItemReviewLock toggles the protection flag on one content entry while
// the CV is under review.
func (s *Service) SetItemReviewLock(ctx context.Context, cvID id.CVID, section string, index int, locked bool) (*models.CV, error) {
	if cvID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "cv id is required")
	}
	now := requestcontext.Now(ctx)
	cv, err := s.cvs.Execute(ctx, cvID,
		func(c *models.CV) error {
			probe := *c
			probe.Content = c.Content.Clone()
			return probe.SetItemReviewLock(section, index, locked, now)
		},
		func(c *models.CV) { _ = c.SetItemReviewLock(section, index, locked, now) },
	)
	if err != nil {
		return nil, s.translate(err, "cv")
	}
	return cv, nil
}

// View is a CV joined with its assignment summaries.
type View struct {
	CV          *models.CV          `json:"cv"`
	Assignments []AssignmentSummary `json:"assignments"`
}

// Get loads one CV and, when an assignment reader is wired, its assignment
// summaries.
func (s *Service) Get(ctx context.Context, cvID id.CVID) (*View, error) {
	if cvID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "cv id is required")
	}
	cv, err := s.cvs.FindByID(ctx, cvID)
	if err != nil {
		return nil, s.translate(err, "cv")
	}
	view := &View{CV: cv}
	if s.assignments != nil {
		summaries, err := s.assignments.SummariesByCV(ctx, cvID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load cv assignments")
		}
		view.Assignments = summaries
	}
	return view, nil
}

// Latest returns the newest CV version for a (user, organization) pair.
func (s *Service) Latest(ctx context.Context, userID id.UserID, orgID id.OrgID) (*models.CV, error) {
	if userID.IsNil() || orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user id and organization id are required")
	}
	cv, err := s.cvs.LatestByUserOrg(ctx, userID, orgID)
	if err != nil {
		return nil, s.translate(err, "cv")
	}
	return cv, nil
}

// History returns every version for the pair, newest first, each enriched
// with its assignment decision counts.
func (s *Service) History(ctx context.Context, userID id.UserID, orgID id.OrgID) ([]models.HistoryEntry, error) {
	if userID.IsNil() || orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user id and organization id are required")
	}
	start := time.Now()
	cvs, err := s.cvs.ListByUserOrg(ctx, userID, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cvs")
	}

	entries := make([]models.HistoryEntry, len(cvs))
	g, gctx := errgroup.WithContext(ctx)
	for i, cv := range cvs {
		entries[i].CV = cv
		if s.assignments == nil {
			continue
		}
		g.Go(func() error {
			counts, err := s.assignments.CountsByCV(gctx, cv.ID)
			if err != nil {
				return err
			}
			entries[i].Assignments = counts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load assignment counts")
	}

	if s.metrics != nil {
		s.metrics.ObserveHistory(start)
	}
	return entries, nil
}

func (s *Service) translate(err error, entity string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, entity+" not found")
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update "+entity)
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, userID id.UserID, subject string) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event),
			"event", event,
			"log_type", "audit",
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		UserID:  userID,
		Subject: subject,
		Action:  string(event),
	})
}
