// Package service orchestrates the service catalog: parents, offerings and
// the immutable requirement checklists attached to them.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"experthub/internal/catalog/models"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/platform/audit"
	"experthub/pkg/platform/sentinel"
	txcontext "experthub/pkg/platform/tx"
	"experthub/pkg/requestcontext"
)

type ParentStore interface {
	Create(ctx context.Context, parent *models.ServiceParent) error
	FindByID(ctx context.Context, parentID id.ParentID) (*models.ServiceParent, error)
	ListActive(ctx context.Context) ([]*models.ServiceParent, error)
}

type OfferingStore interface {
	Create(ctx context.Context, offering *models.ServiceOffering) error
	FindByID(ctx context.Context, offeringID id.OfferingID) (*models.ServiceOffering, error)
	ListActive(ctx context.Context) ([]*models.ServiceOffering, error)
	ListActiveByParent(ctx context.Context, parentID id.ParentID) ([]*models.ServiceOffering, error)
	Execute(ctx context.Context, offeringID id.OfferingID, validate func(*models.ServiceOffering) error, mutate func(*models.ServiceOffering)) (*models.ServiceOffering, error)
}

type RequirementStore interface {
	Create(ctx context.Context, req *models.Requirement) error
	FindByID(ctx context.Context, reqID id.RequirementID) (*models.Requirement, error)
	ListByOffering(ctx context.Context, offeringID id.OfferingID) ([]*models.Requirement, error)
	Execute(ctx context.Context, reqID id.RequirementID, validate func(*models.Requirement) error, mutate func(*models.Requirement)) (*models.Requirement, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service orchestrates catalog management.
type Service struct {
	parents        ParentStore
	offerings      OfferingStore
	requirements   RequirementStore
	tx             txcontext.Runner
	logger         *slog.Logger
	auditPublisher AuditPublisher
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

func WithTxRunner(tx txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func New(parents ParentStore, offerings OfferingStore, requirements RequirementStore, opts ...Option) *Service {
	s := &Service{parents: parents, offerings: offerings, requirements: requirements}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = txcontext.NewPassthroughRunner()
	}
	return s
}

func (s *Service) CreateParent(ctx context.Context, name, description string) (*models.ServiceParent, error) {
	parent, err := models.NewServiceParent(id.ParentID(uuid.New()), name, description, requestcontext.Now(ctx))
	if err != nil {
		return nil, asValidation(err)
	}
	if err := s.parents.Create(ctx, parent); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create service parent")
	}
	return parent, nil
}

func (s *Service) ListParents(ctx context.Context) ([]*models.ServiceParent, error) {
	parents, err := s.parents.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list service parents")
	}
	return parents, nil
}

func (s *Service) CreateOffering(ctx context.Context, parentID id.ParentID, version, name, description string) (*models.ServiceOffering, error) {
	if _, err := s.parents.FindByID(ctx, parentID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "service parent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load service parent")
	}

	offering, err := models.NewServiceOffering(id.OfferingID(uuid.New()), parentID, version, name, description, requestcontext.Now(ctx))
	if err != nil {
		return nil, asValidation(err)
	}
	if err := s.offerings.Create(ctx, offering); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create offering")
	}

	s.logAudit(ctx, audit.EventOfferingCreated, offering.ID.String())
	return offering, nil
}

func (s *Service) GetOffering(ctx context.Context, offeringID id.OfferingID) (*models.ServiceOffering, error) {
	offering, err := s.offerings.FindByID(ctx, offeringID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "offering not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load offering")
	}
	return offering, nil
}

func (s *Service) ListOfferings(ctx context.Context) ([]*models.ServiceOffering, error) {
	offerings, err := s.offerings.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list offerings")
	}
	return offerings, nil
}

func (s *Service) ListOfferingsByParent(ctx context.Context, parentID id.ParentID) ([]*models.ServiceOffering, error) {
	offerings, err := s.offerings.ListActiveByParent(ctx, parentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list offerings")
	}
	return offerings, nil
}

// DeprecateOffering marks an offering inactive. Existing assignments keep
// referencing it; new assignments should target the successor version.
func (s *Service) DeprecateOffering(ctx context.Context, offeringID id.OfferingID) (*models.ServiceOffering, error) {
	now := requestcontext.Now(ctx)
	offering, err := s.offerings.Execute(ctx, offeringID,
		func(o *models.ServiceOffering) error {
			if err := o.CanDeprecate(); err != nil {
				return dErrors.New(dErrors.CodeConflict, "offering is already deprecated")
			}
			return nil
		},
		func(o *models.ServiceOffering) {
			o.ApplyDeprecation(now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "offering not found")
		}
		return nil, err
	}
	return offering, nil
}

// CreateRequirementParams carries everything needed to publish a requirement.
// Replaces, when set, atomically retires the old requirement and cross-links
// both records.
type CreateRequirementParams struct {
	OfferingID    id.OfferingID
	Title         string
	Description   string
	Applicability models.Applicability
	Order         *int
	CreatedBy     string
	Replaces      *id.RequirementID
}

func (s *Service) CreateRequirement(ctx context.Context, params CreateRequirementParams) (*models.Requirement, error) {
	if _, err := s.GetOffering(ctx, params.OfferingID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	req, err := models.NewRequirement(id.RequirementID(uuid.New()), params.OfferingID, params.Title, params.Applicability, params.Order, params.CreatedBy, now)
	if err != nil {
		return nil, asValidation(err)
	}
	req.Description = params.Description
	req.Replaces = params.Replaces

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if params.Replaces != nil {
			newID := req.ID
			_, err := s.requirements.Execute(txCtx, *params.Replaces,
				func(old *models.Requirement) error {
					return old.CanRetire()
				},
				func(old *models.Requirement) {
					old.ApplyRetirement(now, params.CreatedBy, "Replaced by requirement: "+req.Title)
					old.ReplacedBy = &newID
				},
			)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.New(dErrors.CodeNotFound, "requirement to replace not found")
				}
				return err
			}
		}

		if err := s.requirements.Create(txCtx, req); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create requirement")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventRequirementCreated, req.ID.String())
	return req, nil
}

func (s *Service) RetireRequirement(ctx context.Context, reqID id.RequirementID, retiredBy, reason string) (*models.Requirement, error) {
	if retiredBy == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "retired_by is required")
	}

	now := requestcontext.Now(ctx)
	req, err := s.requirements.Execute(ctx, reqID,
		func(r *models.Requirement) error {
			return r.CanRetire()
		},
		func(r *models.Requirement) {
			r.ApplyRetirement(now, retiredBy, reason)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "requirement not found")
		}
		return nil, err
	}

	s.logAudit(ctx, audit.EventRequirementRetired, req.ID.String())
	return req, nil
}

// ListActiveRequirements returns the non-retired requirements binding the
// given role, in display order.
func (s *Service) ListActiveRequirements(ctx context.Context, offeringID id.OfferingID, role models.Role) ([]*models.Requirement, error) {
	all, err := s.requirements.ListByOffering(ctx, offeringID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list requirements")
	}

	active := make([]*models.Requirement, 0, len(all))
	for _, req := range all {
		if req.IsRetired() {
			continue
		}
		if !req.Applicability.AppliesTo(role) {
			continue
		}
		active = append(active, req)
	}
	models.SortForDisplay(active)
	return active, nil
}

func (s *Service) GetRequirement(ctx context.Context, reqID id.RequirementID) (*models.Requirement, error) {
	req, err := s.requirements.FindByID(ctx, reqID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "requirement not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load requirement")
	}
	return req, nil
}

// RequirementHistory resolves the replacement chain around one requirement.
func (s *Service) RequirementHistory(ctx context.Context, reqID id.RequirementID) (*models.RequirementHistory, error) {
	current, err := s.GetRequirement(ctx, reqID)
	if err != nil {
		return nil, err
	}

	history := &models.RequirementHistory{Current: current}
	if current.Replaces != nil {
		if replaced, err := s.requirements.FindByID(ctx, *current.Replaces); err == nil {
			history.Replaced = replaced
		}
	}
	if current.ReplacedBy != nil {
		if successor, err := s.requirements.FindByID(ctx, *current.ReplacedBy); err == nil {
			history.ReplacedBy = successor
		}
	}
	return history, nil
}

// RequirementOrder pairs a requirement with its new display position.
type RequirementOrder struct {
	RequirementID id.RequirementID `json:"requirement_id"`
	Order         int              `json:"order"`
}

// UpdateRequirementOrder bulk-reorders requirements. Order is display
// metadata, not content, so this does not violate requirement immutability.
func (s *Service) UpdateRequirementOrder(ctx context.Context, orders []RequirementOrder) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, item := range orders {
			order := item.Order
			_, err := s.requirements.Execute(txCtx, item.RequirementID,
				func(*models.Requirement) error { return nil },
				func(r *models.Requirement) {
					r.Order = &order
				},
			)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.New(dErrors.CodeNotFound, "requirement not found")
				}
				return err
			}
		}
		return nil
	})
}

func asValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	return err
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, subject string) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event),
			"event", event,
			"log_type", "audit",
			"subject", subject,
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
