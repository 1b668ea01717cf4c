// Package service implements the global qualification registry: at most one
// qualification per (user, offering) pair, created either by an admin, by
// the earn-once training path, or read by the coordinator at CV lock time.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"experthub/internal/qualification/models"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/platform/audit"
	"experthub/pkg/platform/sentinel"
	"experthub/pkg/requestcontext"
)

const pairLockTTL = 10 * time.Second

type Store interface {
	CreateIfAbsent(ctx context.Context, q *models.Qualification) error
	FindByID(ctx context.Context, qualID id.QualificationID) (*models.Qualification, error)
	FindByUserOffering(ctx context.Context, userID id.UserID, offeringID id.OfferingID) (*models.Qualification, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Qualification, error)
	Delete(ctx context.Context, qualID id.QualificationID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service is the qualification registry. The unique index is the authority
// on the one-per-pair invariant; singleflight collapses concurrent attempts
// within the process and the optional redis lock narrows the window across
// processes, so losers read the winner's record instead of erroring.
type Service struct {
	store          Store
	redis          redis.UniversalClient
	group          singleflight.Group
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

func WithRedis(client redis.UniversalClient) Option {
	return func(s *Service) {
		s.redis = client
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateParams struct {
	UserID               id.UserID
	OfferingID           id.OfferingID
	PassedAt             time.Time
	OriginalAssignmentID *id.AssignmentID
	OriginalOrgID        *id.OrgID
	CreatedBy            string
}

// Create records a qualification. Fails with a conflict when the pair
// already holds one.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Qualification, error) {
	q, created, err := s.createOrGet(ctx, params)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, dErrors.New(dErrors.CodeConflict, "a qualification already exists for this user and offering")
	}
	return q, nil
}

// RecordPass is the earn-once path: create the qualification, or return the
// existing one when another organization's approval got there first.
func (s *Service) RecordPass(ctx context.Context, params CreateParams) (*models.Qualification, error) {
	q, _, err := s.createOrGet(ctx, params)
	return q, err
}

func (s *Service) createOrGet(ctx context.Context, params CreateParams) (*models.Qualification, bool, error) {
	q, err := models.NewQualification(id.QualificationID(uuid.New()), params.UserID, params.OfferingID, params.PassedAt, params.CreatedBy, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, false, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, false, err
	}
	q.OriginalAssignmentID = params.OriginalAssignmentID
	q.OriginalOrgID = params.OriginalOrgID

	pairKey := fmt.Sprintf("qualification:%s:%s", params.UserID, params.OfferingID)

	type outcome struct {
		q       *models.Qualification
		created bool
	}
	v, err, _ := s.group.Do(pairKey, func() (any, error) {
		unlock := s.acquirePairLock(ctx, pairKey)
		defer unlock()

		if existing, err := s.store.FindByUserOffering(ctx, params.UserID, params.OfferingID); err == nil {
			return outcome{q: existing}, nil
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up qualification")
		}

		if err := s.store.CreateIfAbsent(ctx, q); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				existing, lookupErr := s.store.FindByUserOffering(ctx, params.UserID, params.OfferingID)
				if lookupErr != nil {
					return nil, dErrors.Wrap(lookupErr, dErrors.CodeInternal, "failed to look up qualification")
				}
				return outcome{q: existing}, nil
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create qualification")
		}
		return outcome{q: q, created: true}, nil
	})
	if err != nil {
		return nil, false, err
	}

	result := v.(outcome)
	if result.created {
		s.logAudit(ctx, audit.EventQualificationCreated, result.q.UserID, result.q.ID.String())
	}
	return result.q, result.created, nil
}

// acquirePairLock takes a best-effort cross-process lock on the pair key.
// The unique index remains the authority when the lock is unavailable.
func (s *Service) acquirePairLock(ctx context.Context, key string) func() {
	if s.redis == nil {
		return func() {}
	}
	token := uuid.NewString()
	ok, err := s.redis.SetNX(ctx, "lock:"+key, token, pairLockTTL).Result()
	if err != nil || !ok {
		if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "qualification pair lock unavailable", "error", err.Error())
		}
		return func() {}
	}
	return func() {
		s.redis.Del(context.WithoutCancel(ctx), "lock:"+key)
	}
}

// Lookup returns the qualification for a pair, or a not-found error.
func (s *Service) Lookup(ctx context.Context, userID id.UserID, offeringID id.OfferingID) (*models.Qualification, error) {
	if userID.IsNil() || offeringID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user id and offering id are required")
	}
	q, err := s.store.FindByUserOffering(ctx, userID, offeringID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "qualification not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up qualification")
	}
	return q, nil
}

func (s *Service) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Qualification, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user id is required")
	}
	out, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list qualifications")
	}
	return out, nil
}

// Delete removes a qualification record. Admin correction only; assignments
// keep their back-links, which then dangle intentionally as audit evidence.
func (s *Service) Delete(ctx context.Context, qualID id.QualificationID) error {
	if qualID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "qualification id is required")
	}
	q, err := s.store.FindByID(ctx, qualID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "qualification not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up qualification")
	}
	if err := s.store.Delete(ctx, qualID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "qualification not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete qualification")
	}
	s.logAudit(ctx, audit.EventQualificationDeleted, q.UserID, q.ID.String())
	return nil
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
