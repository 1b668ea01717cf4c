// Package service orchestrates service assignments: attaching offerings to a
// draft CV, the training lifecycle and requirement check-offs. Review
// decisions run through the lifecycle coordinator, which owns the CV lock.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"experthub/internal/assignment/metrics"
	"experthub/internal/assignment/models"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/platform/audit"
	"experthub/pkg/platform/sentinel"
	txcontext "experthub/pkg/platform/tx"
	"experthub/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, a *models.Assignment) error
	FindByID(ctx context.Context, assignmentID id.AssignmentID) (*models.Assignment, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Assignment, error)
	Delete(ctx context.Context, assignmentID id.AssignmentID) (*models.Assignment, error)
	Execute(ctx context.Context, assignmentID id.AssignmentID, validate func(*models.Assignment) error, mutate func(*models.Assignment)) (*models.Assignment, error)
}

// CVInfo is the slice of CV state assignment rules depend on.
type CVInfo struct {
	ID               id.CVID
	UserID           id.UserID
	OrgID            id.OrgID
	Status           string
	ServicesEditable bool
	Final            bool
}

// CVGateway is the consumer-declared port onto the CV module.
type CVGateway interface {
	Find(ctx context.Context, cvID id.CVID) (*CVInfo, error)
	// AdjustPendingCount moves the CV's undecided-assignment counter. Must
	// join the transaction on ctx.
	AdjustPendingCount(ctx context.Context, cvID id.CVID, delta int) error
}

// RequirementInfo is the slice of catalog state check-offs depend on.
type RequirementInfo struct {
	ID          id.RequirementID `json:"id"`
	OfferingID  id.OfferingID    `json:"offering_id"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Order       *int             `json:"order,omitempty"`
	Retired     bool             `json:"retired"`
}

// RequirementCatalog is the consumer-declared port onto the catalog module.
type RequirementCatalog interface {
	ActiveForRole(ctx context.Context, offeringID id.OfferingID, role models.Role) ([]RequirementInfo, error)
	Find(ctx context.Context, requirementID id.RequirementID) (*RequirementInfo, error)
}

// QualificationInfo is what the earn-once path gets back from the registry.
type QualificationInfo struct {
	ID       id.QualificationID
	PassedAt time.Time
}

// TrainingRegistry records a direct training pass in the global registry.
type TrainingRegistry interface {
	RecordPass(ctx context.Context, userID id.UserID, offeringID id.OfferingID, assignmentID id.AssignmentID, orgID id.OrgID, passedAt time.Time) (*QualificationInfo, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service orchestrates assignment management outside the decision path.
type Service struct {
	assignments    Store
	cvs            CVGateway
	catalog        RequirementCatalog
	registry       TrainingRegistry
	tx             txcontext.Runner
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

func WithTxRunner(runner txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func WithRequirementCatalog(catalog RequirementCatalog) Option {
	return func(s *Service) {
		s.catalog = catalog
	}
}

func WithTrainingRegistry(registry TrainingRegistry) Option {
	return func(s *Service) {
		s.registry = registry
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(assignments Store, cvs CVGateway, opts ...Option) *Service {
	s := &Service{
		assignments: assignments,
		cvs:         cvs,
		tx:          txcontext.NewPassthroughRunner(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateParams struct {
	CVID       id.CVID
	OfferingID *id.OfferingID
	Role       models.Role
	AssignedBy string
}

// Create attaches one offering to a draft CV. A nil OfferingID creates an
// unassigned shell. The new assignment starts pending_review, so the CV's
// pending counter moves in the same transaction.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Assignment, error) {
	cv, err := s.editableCV(ctx, params.CVID)
	if err != nil {
		return nil, err
	}

	offering := models.UnassignedOffering()
	if params.OfferingID != nil {
		offering = models.NewOfferingRef(*params.OfferingID)
	}
	a, err := models.NewAssignment(id.AssignmentID(uuid.New()), cv.UserID, cv.OrgID, cv.ID, offering, params.Role, params.AssignedBy, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.assignments.Create(txCtx, a); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "an assignment for this cv and offering already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create assignment")
		}
		return s.cvs.AdjustPendingCount(txCtx, cv.ID, 1)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	s.logAudit(ctx, audit.EventAssignmentCreated, a.UserID, a.ID.String())
	return a, nil
}

// BulkCreate attaches several offerings at once, skipping pairs that already
// exist instead of failing the batch.
func (s *Service) BulkCreate(ctx context.Context, cvID id.CVID, offeringIDs []id.OfferingID, role models.Role, assignedBy string) ([]*models.Assignment, error) {
	cv, err := s.editableCV(ctx, cvID)
	if err != nil {
		return nil, err
	}

	existing, err := s.assignments.List(ctx, models.ListFilter{CVID: &cvID})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list assignments")
	}
	taken := make(map[id.OfferingID]bool, len(existing))
	for _, a := range existing {
		if a.Offering.IsAssigned() {
			taken[a.Offering.ID()] = true
		}
	}

	now := requestcontext.Now(ctx)
	var created []*models.Assignment
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, offeringID := range offeringIDs {
			if taken[offeringID] {
				continue
			}
			taken[offeringID] = true
			a, err := models.NewAssignment(id.AssignmentID(uuid.New()), cv.UserID, cv.OrgID, cv.ID, models.NewOfferingRef(offeringID), role, assignedBy, now)
			if err != nil {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			if err := s.assignments.Create(txCtx, a); err != nil {
				if errors.Is(err, sentinel.ErrAlreadyUsed) {
					continue
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create assignment")
			}
			created = append(created, a)
		}
		if len(created) == 0 {
			return nil
		}
		return s.cvs.AdjustPendingCount(txCtx, cv.ID, len(created))
	})
	if err != nil {
		return nil, err
	}

	for _, a := range created {
		if s.metrics != nil {
			s.metrics.IncrementCreated()
		}
		s.logAudit(ctx, audit.EventAssignmentCreated, a.UserID, a.ID.String())
	}
	return created, nil
}

// Delete removes an assignment while the owning CV is still in draft. A
// pending assignment takes the CV counter down with it.
func (s *Service) Delete(ctx context.Context, assignmentID id.AssignmentID) error {
	a, err := s.get(ctx, assignmentID)
	if err != nil {
		return err
	}
	if _, err := s.editableCV(ctx, a.CVID); err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		// Settle the counter from the row the delete removed, not from
		// the snapshot read before the transaction started.
		deleted, err := s.assignments.Delete(txCtx, assignmentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "assignment not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete assignment")
		}
		if deleted.ReviewStatus == models.ReviewPending {
			return s.cvs.AdjustPendingCount(txCtx, deleted.CVID, -1)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementDeleted()
	}
	s.logAudit(ctx, audit.EventAssignmentDeleted, a.UserID, a.ID.String())
	return nil
}

func (s *Service) Get(ctx context.Context, assignmentID id.AssignmentID) (*models.Assignment, error) {
	return s.get(ctx, assignmentID)
}

func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Assignment, error) {
	assignments, err := s.assignments.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list assignments")
	}
	return assignments, nil
}

// InviteTraining invites an approved assignment into training.
func (s *Service) InviteTraining(ctx context.Context, assignmentID id.AssignmentID) (*models.Assignment, error) {
	now := requestcontext.Now(ctx)
	a, err := s.assignments.Execute(ctx, assignmentID,
		func(a *models.Assignment) error { return a.CanInviteTraining() },
		func(a *models.Assignment) { a.ApplyTrainingInvite(now) },
	)
	if err != nil {
		return nil, s.translate(err)
	}
	s.observeTraining(ctx, a)
	return a, nil
}

// StartTraining moves an invited (or failed, for a retry) assignment into
// in_progress.
func (s *Service) StartTraining(ctx context.Context, assignmentID id.AssignmentID) (*models.Assignment, error) {
	now := requestcontext.Now(ctx)
	a, err := s.assignments.Execute(ctx, assignmentID,
		func(a *models.Assignment) error { return a.CanStartTraining() },
		func(a *models.Assignment) { a.ApplyTrainingStart(now) },
	)
	if err != nil {
		return nil, s.translate(err)
	}
	s.observeTraining(ctx, a)
	return a, nil
}

// CompleteTraining records the outcome. A pass on the earn-once path creates
// the global qualification and back-links it onto the assignment.
func (s *Service) CompleteTraining(ctx context.Context, assignmentID id.AssignmentID, passed bool) (*models.Assignment, error) {
	now := requestcontext.Now(ctx)
	a, err := s.assignments.Execute(ctx, assignmentID,
		func(a *models.Assignment) error { return a.CanCompleteTraining(passed) },
		func(a *models.Assignment) { a.ApplyTrainingComplete(passed, now) },
	)
	if err != nil {
		return nil, s.translate(err)
	}

	if passed && s.registry != nil && a.Offering.IsAssigned() {
		qual, err := s.registry.RecordPass(ctx, a.UserID, a.Offering.ID(), a.ID, a.OrgID, now)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record qualification")
		}
		a, err = s.assignments.Execute(ctx, assignmentID,
			func(*models.Assignment) error { return nil },
			func(a *models.Assignment) {
				a.QualificationID = &qual.ID
				passedAt := qual.PassedAt
				a.QualifiedAt = &passedAt
				a.UpdatedAt = now
			},
		)
		if err != nil {
			return nil, s.translate(err)
		}
	}

	s.observeTraining(ctx, a)
	return a, nil
}

// SetCheckoff records or clears one requirement check-off. Rejected once the
// owning CV is terminally locked and against retired requirements.
func (s *Service) SetCheckoff(ctx context.Context, assignmentID id.AssignmentID, requirementID id.RequirementID, checked bool, note string) (*models.Assignment, error) {
	a, err := s.get(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkoffAllowed(ctx, a, requirementID, checked); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	checkedBy := requestcontext.Actor(ctx)
	a, err = s.assignments.Execute(ctx, assignmentID,
		func(*models.Assignment) error { return nil },
		func(a *models.Assignment) { a.SetCheckoff(requirementID, checked, checkedBy, note, now) },
	)
	if err != nil {
		return nil, s.translate(err)
	}

	if checked {
		if s.metrics != nil {
			s.metrics.IncrementCheckoff()
		}
		s.logAudit(ctx, audit.EventCheckoffRecorded, a.UserID, requirementID.String())
	}
	return a, nil
}

// BulkCheckoff records several check-offs in one pass, validating each
// requirement up front so a retired one rejects the whole batch.
func (s *Service) BulkCheckoff(ctx context.Context, assignmentID id.AssignmentID, requirementIDs []id.RequirementID) (*models.Assignment, error) {
	a, err := s.get(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	for _, requirementID := range requirementIDs {
		if err := s.checkoffAllowed(ctx, a, requirementID, true); err != nil {
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	checkedBy := requestcontext.Actor(ctx)
	a, err = s.assignments.Execute(ctx, assignmentID,
		func(*models.Assignment) error { return nil },
		func(a *models.Assignment) {
			for _, requirementID := range requirementIDs {
				a.SetCheckoff(requirementID, true, checkedBy, "", now)
			}
		},
	)
	if err != nil {
		return nil, s.translate(err)
	}

	for _, requirementID := range requirementIDs {
		if s.metrics != nil {
			s.metrics.IncrementCheckoff()
		}
		s.logAudit(ctx, audit.EventCheckoffRecorded, a.UserID, requirementID.String())
	}
	return a, nil
}

// AssignmentRequirement is one checklist row in the merged review view.
type AssignmentRequirement struct {
	RequirementInfo
	Checked   bool       `json:"checked"`
	CheckedBy string     `json:"checked_by,omitempty"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`
	Note      string     `json:"note,omitempty"`
}

// Requirements returns the active checklist for an assignment's offering and
// role, merged with its recorded check-off state.
func (s *Service) Requirements(ctx context.Context, assignmentID id.AssignmentID) ([]AssignmentRequirement, error) {
	a, err := s.get(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if !a.Offering.IsAssigned() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "assignment has no service offering")
	}
	if s.catalog == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "requirement catalog is not configured")
	}

	infos, err := s.catalog.ActiveForRole(ctx, a.Offering.ID(), a.Role)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load requirements")
	}
	merged := make([]AssignmentRequirement, 0, len(infos))
	for _, info := range infos {
		row := AssignmentRequirement{RequirementInfo: info}
		if checkoff, ok := a.CheckoffFor(info.ID); ok {
			row.Checked = true
			row.CheckedBy = checkoff.CheckedBy
			checkedAt := checkoff.CheckedAt
			row.CheckedAt = &checkedAt
			row.Note = checkoff.Note
		}
		merged = append(merged, row)
	}
	return merged, nil
}

// DecisionCounts aggregates review outcomes over one CV's assignments.
type DecisionCounts struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
	Rejected int `json:"rejected"`
}

// Counts tallies review outcomes for the CV history view.
func (s *Service) Counts(ctx context.Context, cvID id.CVID) (DecisionCounts, error) {
	assignments, err := s.assignments.List(ctx, models.ListFilter{CVID: &cvID})
	if err != nil {
		return DecisionCounts{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list assignments")
	}
	counts := DecisionCounts{Total: len(assignments)}
	for _, a := range assignments {
		switch a.ReviewStatus {
		case models.ReviewApproved:
			counts.Approved++
		case models.ReviewRejected:
			counts.Rejected++
		default:
			counts.Pending++
		}
	}
	return counts, nil
}

func (s *Service) get(ctx context.Context, assignmentID id.AssignmentID) (*models.Assignment, error) {
	if assignmentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "assignment id is required")
	}
	a, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, s.translate(err)
	}
	return a, nil
}

func (s *Service) editableCV(ctx context.Context, cvID id.CVID) (*CVInfo, error) {
	if cvID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "cv id is required")
	}
	cv, err := s.cvs.Find(ctx, cvID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "cv not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load cv")
	}
	if !cv.ServicesEditable {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "assignments can only change while the cv is in draft")
	}
	return cv, nil
}

func (s *Service) checkoffAllowed(ctx context.Context, a *models.Assignment, requirementID id.RequirementID, checked bool) error {
	cv, err := s.cvs.Find(ctx, a.CVID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load cv")
	}
	if cv.Final {
		return dErrors.New(dErrors.CodeInvalidTransition, "cv is locked; check-offs are frozen")
	}
	if !checked {
		return nil
	}
	if s.catalog == nil {
		return dErrors.New(dErrors.CodeInternal, "requirement catalog is not configured")
	}
	info, err := s.catalog.Find(ctx, requirementID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "requirement not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load requirement")
	}
	if info.Retired {
		return dErrors.New(dErrors.CodeInvalidTransition, "requirement is retired and cannot be checked off")
	}
	if !a.Offering.IsAssigned() || info.OfferingID != a.Offering.ID() {
		return dErrors.New(dErrors.CodeInvalidInput, "requirement does not belong to this assignment's offering")
	}
	return nil
}

func (s *Service) observeTraining(ctx context.Context, a *models.Assignment) {
	if s.metrics != nil {
		s.metrics.ObserveTrainingTransition(string(a.TrainingStatus))
	}
	s.logAudit(ctx, audit.EventTrainingUpdated, a.UserID, a.ID.String())
}

func (s *Service) translate(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "assignment not found")
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update assignment")
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
