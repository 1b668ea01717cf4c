package org

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"experthub/internal/directory/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
	txcontext "experthub/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Postgres persists organizations. A unique index on lower(name) backs the
// name-uniqueness invariant.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) querier(ctx context.Context) txcontext.Querier {
	return txcontext.Resolve(ctx, s.db)
}

func (s *Postgres) CreateIfNameAvailable(ctx context.Context, org *models.Organization) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO organizations (id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		org.ID.String(), org.Name, string(org.Status),
		org.CreatedAt.UTC(), org.UpdatedAt.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, orgID id.OrgID) (*models.Organization, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT id, name, status, created_at, updated_at
		FROM organizations WHERE id = $1`,
		orgID.String(),
	)
	return scanOrg(row)
}

func (s *Postgres) List(ctx context.Context) ([]*models.Organization, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT id, name, status, created_at, updated_at
		FROM organizations ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func (s *Postgres) Execute(ctx context.Context, orgID id.OrgID, validate func(*models.Organization) error, mutate func(*models.Organization)) (*models.Organization, error) {
	var result *models.Organization
	err := txcontext.NewSQLRunner(s.db).RunInTx(ctx, func(txCtx context.Context) error {
		row := s.querier(txCtx).QueryRowContext(txCtx, `
			SELECT id, name, status, created_at, updated_at
			FROM organizations WHERE id = $1 FOR UPDATE`,
			orgID.String(),
		)
		org, err := scanOrg(row)
		if err != nil {
			return err
		}
		if err := validate(org); err != nil {
			return err
		}
		mutate(org)

		_, err = s.querier(txCtx).ExecContext(txCtx, `
			UPDATE organizations SET name = $2, status = $3, updated_at = $4
			WHERE id = $1`,
			org.ID.String(), org.Name, string(org.Status), org.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("update organization: %w", err)
		}
		result = org
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrg(row rowScanner) (*models.Organization, error) {
	var (
		org    models.Organization
		rawID  string
		status string
	)
	if err := row.Scan(&rawID, &org.Name, &status, &org.CreatedAt, &org.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan organization: %w", err)
	}
	orgID, err := id.ParseOrgID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse organization id: %w", err)
	}
	org.ID = orgID
	org.Status = models.OrgStatus(status)
	return &org, nil
}
