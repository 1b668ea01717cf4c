// Package service orchestrates the user and organization directories.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"experthub/internal/directory/models"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/platform/audit"
	"experthub/pkg/platform/sentinel"
	"experthub/pkg/requestcontext"
)

type UserStore interface {
	CreateIfEmailAvailable(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Execute(ctx context.Context, userID id.UserID, validate func(*models.User) error, mutate func(*models.User)) (*models.User, error)
}

type OrgStore interface {
	CreateIfNameAvailable(ctx context.Context, org *models.Organization) error
	FindByID(ctx context.Context, orgID id.OrgID) (*models.Organization, error)
	List(ctx context.Context) ([]*models.Organization, error)
	Execute(ctx context.Context, orgID id.OrgID, validate func(*models.Organization) error, mutate func(*models.Organization)) (*models.Organization, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service orchestrates directory management.
type Service struct {
	users          UserStore
	orgs           OrgStore
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

func New(users UserStore, orgs OrgStore, opts ...Option) *Service {
	s := &Service{users: users, orgs: orgs}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateUser(ctx context.Context, name, email string) (*models.User, error) {
	user, err := models.NewUser(id.UserID(uuid.New()), name, email, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.users.CreateIfEmailAvailable(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "user email must be unique")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.logAudit(ctx, audit.EventUserCreated, user.ID, "")
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user id is required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return users, nil
}

// DeactivateUser marks a user inactive. Existing CVs and assignments are
// untouched; new assignment creation checks the flag.
func (s *Service) DeactivateUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user id is required")
	}

	now := requestcontext.Now(ctx)
	user, err := s.users.Execute(ctx, userID,
		func(u *models.User) error {
			if !u.Active {
				return dErrors.New(dErrors.CodeConflict, "user is already inactive")
			}
			return nil
		},
		func(u *models.User) {
			u.Active = false
			u.UpdatedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, err
	}

	s.logAudit(ctx, audit.EventUserDeactivated, user.ID, "")
	return user, nil
}

func (s *Service) CreateOrganization(ctx context.Context, name string) (*models.Organization, error) {
	org, err := models.NewOrganization(id.OrgID(uuid.New()), name, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.orgs.CreateIfNameAvailable(ctx, org); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "organization name must be unique")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create organization")
	}

	s.logAudit(ctx, audit.EventOrganizationSaved, id.UserID{}, org.ID.String())
	return org, nil
}

func (s *Service) GetOrganization(ctx context.Context, orgID id.OrgID) (*models.Organization, error) {
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "organization id is required")
	}
	org, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load organization")
	}
	return org, nil
}

func (s *Service) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	orgs, err := s.orgs.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list organizations")
	}
	return orgs, nil
}

func (s *Service) DeactivateOrganization(ctx context.Context, orgID id.OrgID) (*models.Organization, error) {
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "organization id is required")
	}

	now := requestcontext.Now(ctx)
	org, err := s.orgs.Execute(ctx, orgID,
		func(o *models.Organization) error {
			if err := o.CanDeactivate(); err != nil {
				return dErrors.New(dErrors.CodeConflict, "organization is already inactive")
			}
			return nil
		},
		func(o *models.Organization) {
			o.ApplyDeactivation(now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		return nil, err
	}

	s.logAudit(ctx, audit.EventOrganizationSaved, id.UserID{}, org.ID.String())
	return org, nil
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
