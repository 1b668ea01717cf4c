package offering

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

const offeringColumns = `id, parent_id, version, name, description, active, released_at, deprecated_at, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, offering *models.ServiceOffering) error {
	var deprecatedAt any
	if offering.DeprecatedAt != nil {
		deprecatedAt = offering.DeprecatedAt.UTC()
	}
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO service_offerings (`+offeringColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		offering.ID.String(), offering.ParentID.String(), offering.Version,
		offering.Name, offering.Description, offering.Active,
		offering.ReleasedAt.UTC(), deprecatedAt,
		offering.CreatedAt.UTC(), offering.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert offering: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, offeringID id.OfferingID) (*models.ServiceOffering, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT `+offeringColumns+` FROM service_offerings WHERE id = $1`,
		offeringID.String(),
	)
	return scanOffering(row)
}

func (s *Postgres) ListActive(ctx context.Context) ([]*models.ServiceOffering, error) {
	return s.list(ctx, `
		SELECT `+offeringColumns+` FROM service_offerings
		WHERE active ORDER BY created_at ASC`)
}

func (s *Postgres) ListActiveByParent(ctx context.Context, parentID id.ParentID) ([]*models.ServiceOffering, error) {
	return s.list(ctx, `
		SELECT `+offeringColumns+` FROM service_offerings
		WHERE active AND parent_id = $1 ORDER BY created_at ASC`,
		parentID.String())
}

func (s *Postgres) Execute(ctx context.Context, offeringID id.OfferingID, validate func(*models.ServiceOffering) error, mutate func(*models.ServiceOffering)) (*models.ServiceOffering, error) {
	var result *models.ServiceOffering
	err := txcontext.NewSQLRunner(s.db).RunInTx(ctx, func(txCtx context.Context) error {
		row := s.querier(txCtx).QueryRowContext(txCtx, `
			SELECT `+offeringColumns+` FROM service_offerings WHERE id = $1 FOR UPDATE`,
			offeringID.String(),
		)
		offering, err := scanOffering(row)
		if err != nil {
			return err
		}
		if err := validate(offering); err != nil {
			return err
		}
		mutate(offering)

		var deprecatedAt any
		if offering.DeprecatedAt != nil {
			deprecatedAt = offering.DeprecatedAt.UTC()
		}
		_, err = s.querier(txCtx).ExecContext(txCtx, `
			UPDATE service_offerings
			SET active = $2, deprecated_at = $3, updated_at = $4
			WHERE id = $1`,
			offering.ID.String(), offering.Active, deprecatedAt, offering.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("update offering: %w", err)
		}
		result = offering
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Postgres) list(ctx context.Context, query string, args ...any) ([]*models.ServiceOffering, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list offerings: %w", err)
	}
	defer rows.Close()

	var offerings []*models.ServiceOffering
	for rows.Next() {
		offering, err := scanOffering(rows)
		if err != nil {
			return nil, err
		}
		offerings = append(offerings, offering)
	}
	return offerings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffering(row rowScanner) (*models.ServiceOffering, error) {
	var (
		offering     models.ServiceOffering
		rawID        string
		rawParentID  string
		deprecatedAt sql.NullTime
	)
	if err := row.Scan(
		&rawID, &rawParentID, &offering.Version, &offering.Name, &offering.Description,
		&offering.Active, &offering.ReleasedAt, &deprecatedAt,
		&offering.CreatedAt, &offering.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan offering: %w", err)
	}

	offeringID, err := id.ParseOfferingID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse offering id: %w", err)
	}
	parentID, err := id.ParseParentID(rawParentID)
	if err != nil {
		return nil, fmt.Errorf("parse offering parent id: %w", err)
	}
	offering.ID = offeringID
	offering.ParentID = parentID
	if deprecatedAt.Valid {
		t := deprecatedAt.Time
		offering.DeprecatedAt = &t
	}
	return &offering, nil
}
