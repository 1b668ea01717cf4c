// Package service manages organization service approvals and the annual fee
// that keeps an approved service deliverable. Payment only records
// references and timestamps; money moves elsewhere.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"

	"experthub/internal/billing/metrics"
	"experthub/internal/billing/models"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/platform/audit"
	"experthub/pkg/platform/sentinel"
	"experthub/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, a *models.Approval) error
	FindByID(ctx context.Context, approvalID id.ApprovalID) (*models.Approval, error)
	FindByOrgOffering(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID) (*models.Approval, error)
	ListByOrg(ctx context.Context, orgID id.OrgID) ([]*models.Approval, error)
	ListPaid(ctx context.Context) ([]*models.Approval, error)
	Execute(ctx context.Context, approvalID id.ApprovalID, validate func(*models.Approval) error, mutate func(*models.Approval)) (*models.Approval, error)
}

// LeadInfo is one lead assignment as the fee gate sees it.
type LeadInfo struct {
	AssignmentID id.AssignmentID `json:"assignment_id"`
	UserID       id.UserID       `json:"user_id"`
	Qualified    bool            `json:"qualified"`
}

// LeadRoster is the consumer-declared port onto the assignment module.
type LeadRoster interface {
	Leads(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID) ([]LeadInfo, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

type Service struct {
	approvals      Store
	roster         LeadRoster
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(approvals Store, roster LeadRoster, opts ...Option) *Service {
	s := &Service{approvals: approvals, roster: roster}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordApproval creates the approval record for an (organization, offering)
// pair.
func (s *Service) RecordApproval(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID, status models.ApprovalStatus, createdBy string) (*models.Approval, error) {
	a, err := models.NewApproval(id.ApprovalID(uuid.New()), orgID, offeringID, status, createdBy, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.approvals.Create(ctx, a); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "an approval already exists for this organization and offering")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create approval")
	}

	if s.metrics != nil {
		s.metrics.IncrementApproval(string(a.Status))
	}
	s.logAudit(ctx, audit.EventApprovalRecorded, a.ID.String())
	return a, nil
}

// SetStatus applies an administrative status change.
func (s *Service) SetStatus(ctx context.Context, approvalID id.ApprovalID, status models.ApprovalStatus) (*models.Approval, error) {
	now := requestcontext.Now(ctx)
	a, err := s.approvals.Execute(ctx, approvalID,
		func(a *models.Approval) error { return a.CanSetStatus(status) },
		func(a *models.Approval) { a.SetStatus(status, now) },
	)
	if err != nil {
		return nil, s.translate(err)
	}

	if s.metrics != nil {
		s.metrics.IncrementApproval(string(a.Status))
	}
	s.logAudit(ctx, audit.EventApprovalRecorded, a.ID.String())
	return a, nil
}

// PayAnnualFee records the annual fee for an approved service. Requires at
// least one qualified lead assignment for the pair; expiry lands one year
// after payment.
func (s *Service) PayAnnualFee(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID, reference string, amount int64) (*models.Approval, error) {
	a, err := s.find(ctx, orgID, offeringID)
	if err != nil {
		return nil, err
	}

	qualified, err := s.hasQualifiedLead(ctx, orgID, offeringID)
	if err != nil {
		return nil, err
	}
	if !qualified {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "annual fee requires a qualified lead expert for this service")
	}

	now := requestcontext.Now(ctx)
	a, err = s.approvals.Execute(ctx, a.ID,
		func(a *models.Approval) error { return a.CanPayAnnualFee(reference) },
		func(a *models.Approval) { a.ApplyAnnualFee(reference, amount, now) },
	)
	if err != nil {
		return nil, s.translate(err)
	}

	if s.metrics != nil {
		s.metrics.IncrementAnnualFee()
	}
	s.logAudit(ctx, audit.EventAnnualFeePaid, a.ID.String())
	return a, nil
}

// TrackerView reports where the service stands on the road to delivery.
type TrackerView struct {
	Status           models.TrackerStatus `json:"status"`
	HasQualifiedLead bool                 `json:"has_qualified_lead"`
	IsPaid           bool                 `json:"is_paid"`
	IsExpired        bool                 `json:"is_expired"`
	QualifiedLeads   []LeadInfo           `json:"qualified_leads,omitempty"`
	Approval         *models.Approval     `json:"approval,omitempty"`
}

// Tracker derives the readiness status for an (organization, offering)
// pair. A missing or undecided approval reports not_approved rather than an
// error.
func (s *Service) Tracker(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID) (*TrackerView, error) {
	if orgID.IsNil() || offeringID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "organization id and offering id are required")
	}

	a, err := s.approvals.FindByOrgOffering(ctx, orgID, offeringID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &TrackerView{Status: models.TrackerNotApproved}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load approval")
	}
	if a.Status != models.ApprovalApproved {
		return &TrackerView{Status: models.TrackerNotApproved, Approval: a}, nil
	}

	leads, err := s.qualifiedLeads(ctx, orgID, offeringID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	return &TrackerView{
		Status:           a.Tracker(len(leads) > 0, now),
		HasQualifiedLead: len(leads) > 0,
		IsPaid:           a.IsPaid(now),
		IsExpired:        a.IsExpired(now),
		QualifiedLeads:   leads,
		Approval:         a,
	}, nil
}

// QualifiedLeads lists the lead assignments that satisfy the fee gate.
func (s *Service) QualifiedLeads(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID) ([]LeadInfo, error) {
	if orgID.IsNil() || offeringID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "organization id and offering id are required")
	}
	return s.qualifiedLeads(ctx, orgID, offeringID)
}

func (s *Service) ListByOrg(ctx context.Context, orgID id.OrgID) ([]*models.Approval, error) {
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "organization id is required")
	}
	out, err := s.approvals.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list approvals")
	}
	return out, nil
}

// Renewal is one paid service approaching its expiry date.
type Renewal struct {
	Approval        *models.Approval `json:"approval"`
	DaysUntilExpiry int              `json:"days_until_expiry"`
	Urgency         string           `json:"urgency"`
}

const (
	UrgencyUrgent   = "urgent"
	UrgencyWarning  = "warning"
	UrgencyUpcoming = "upcoming"
)

// UpcomingRenewals returns paid services expiring within 90 days, most
// urgent first.
func (s *Service) UpcomingRenewals(ctx context.Context) ([]Renewal, error) {
	paid, err := s.approvals.ListPaid(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list paid approvals")
	}

	now := requestcontext.Now(ctx)
	var renewals []Renewal
	for _, a := range paid {
		days := int(math.Ceil(a.ExpiresAt.Sub(now).Hours() / 24))
		if days < 0 || days > 90 {
			continue
		}
		urgency := UrgencyUpcoming
		switch {
		case days <= 7:
			urgency = UrgencyUrgent
		case days <= 30:
			urgency = UrgencyWarning
		}
		renewals = append(renewals, Renewal{Approval: a, DaysUntilExpiry: days, Urgency: urgency})
	}
	sort.Slice(renewals, func(i, j int) bool { return renewals[i].DaysUntilExpiry < renewals[j].DaysUntilExpiry })
	return renewals, nil
}

func (s *Service) find(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID) (*models.Approval, error) {
	if orgID.IsNil() || offeringID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "organization id and offering id are required")
	}
	a, err := s.approvals.FindByOrgOffering(ctx, orgID, offeringID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "approval not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load approval")
	}
	return a, nil
}

func (s *Service) qualifiedLeads(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID) ([]LeadInfo, error) {
	if s.roster == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "lead roster is not configured")
	}
	leads, err := s.roster.Leads(ctx, orgID, offeringID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load lead assignments")
	}
	qualified := leads[:0:0]
	for _, lead := range leads {
		if lead.Qualified {
			qualified = append(qualified, lead)
		}
	}
	return qualified, nil
}

func (s *Service) hasQualifiedLead(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID) (bool, error) {
	leads, err := s.qualifiedLeads(ctx, orgID, offeringID)
	if err != nil {
		return false, err
	}
	return len(leads) > 0, nil
}

func (s *Service) translate(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "approval not found")
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update approval")
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, subject string) {
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
		Subject: subject,
		Action:  string(event),
	})
}
