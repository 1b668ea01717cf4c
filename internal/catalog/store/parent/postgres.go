package parent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"experthub/internal/catalog/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
	txcontext "experthub/pkg/platform/tx"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) querier(ctx context.Context) txcontext.Querier {
	return txcontext.Resolve(ctx, s.db)
}

func (s *Postgres) Create(ctx context.Context, parent *models.ServiceParent) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO service_parents (id, name, description, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		parent.ID.String(), parent.Name, parent.Description, parent.Active,
		parent.CreatedAt.UTC(), parent.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert service parent: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, parentID id.ParentID) (*models.ServiceParent, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT id, name, description, active, created_at, updated_at
		FROM service_parents WHERE id = $1`,
		parentID.String(),
	)
	return scanParent(row)
}

func (s *Postgres) ListActive(ctx context.Context) ([]*models.ServiceParent, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT id, name, description, active, created_at, updated_at
		FROM service_parents WHERE active ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list service parents: %w", err)
	}
	defer rows.Close()

	var parents []*models.ServiceParent
	for rows.Next() {
		parent, err := scanParent(rows)
		if err != nil {
			return nil, err
		}
		parents = append(parents, parent)
	}
	return parents, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParent(row rowScanner) (*models.ServiceParent, error) {
	var (
		parent models.ServiceParent
		rawID  string
	)
	if err := row.Scan(&rawID, &parent.Name, &parent.Description, &parent.Active, &parent.CreatedAt, &parent.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan service parent: %w", err)
	}
	parentID, err := id.ParseParentID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse service parent id: %w", err)
	}
	parent.ID = parentID
	return &parent, nil
}
