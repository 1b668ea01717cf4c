package requirement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

const requirementColumns = `id, offering_id, title, description, applicability, display_order,
	created_at, created_by, retired_at, retired_by, retirement_reason, replaces_id, replaced_by_id`

func (s *Postgres) Create(ctx context.Context, req *models.Requirement) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO requirements (`+requirementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		req.ID.String(), req.OfferingID.String(), req.Title, req.Description,
		string(req.Applicability), nullableInt(req.Order),
		req.CreatedAt.UTC(), req.CreatedBy,
		nullableTime(req.RetiredAt), nullable(req.RetiredBy), nullable(req.RetirementReason),
		nullableRequirementID(req.Replaces), nullableRequirementID(req.ReplacedBy),
	)
	if err != nil {
		return fmt.Errorf("insert requirement: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, reqID id.RequirementID) (*models.Requirement, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT `+requirementColumns+` FROM requirements WHERE id = $1`,
		reqID.String(),
	)
	return scanRequirement(row)
}

func (s *Postgres) ListByOffering(ctx context.Context, offeringID id.OfferingID) ([]*models.Requirement, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT `+requirementColumns+` FROM requirements
		WHERE offering_id = $1 ORDER BY created_at ASC`,
		offeringID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list requirements: %w", err)
	}
	defer rows.Close()

	var reqs []*models.Requirement
	for rows.Next() {
		req, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (s *Postgres) Execute(ctx context.Context, reqID id.RequirementID, validate func(*models.Requirement) error, mutate func(*models.Requirement)) (*models.Requirement, error) {
	var result *models.Requirement
	err := txcontext.NewSQLRunner(s.db).RunInTx(ctx, func(txCtx context.Context) error {
		row := s.querier(txCtx).QueryRowContext(txCtx, `
			SELECT `+requirementColumns+` FROM requirements WHERE id = $1 FOR UPDATE`,
			reqID.String(),
		)
		req, err := scanRequirement(row)
		if err != nil {
			return err
		}
		if err := validate(req); err != nil {
			return err
		}
		mutate(req)

		_, err = s.querier(txCtx).ExecContext(txCtx, `
			UPDATE requirements
			SET display_order = $2, retired_at = $3, retired_by = $4,
			    retirement_reason = $5, replaced_by_id = $6
			WHERE id = $1`,
			req.ID.String(), nullableInt(req.Order),
			nullableTime(req.RetiredAt), nullable(req.RetiredBy), nullable(req.RetirementReason),
			nullableRequirementID(req.ReplacedBy),
		)
		if err != nil {
			return fmt.Errorf("update requirement: %w", err)
		}
		result = req
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

func scanRequirement(row rowScanner) (*models.Requirement, error) {
	var (
		req           models.Requirement
		rawID         string
		rawOfferingID string
		applicability string
		description   sql.NullString
		order         sql.NullInt64
		retiredAt     sql.NullTime
		retiredBy     sql.NullString
		reason        sql.NullString
		replaces      sql.NullString
		replacedBy    sql.NullString
	)
	if err := row.Scan(
		&rawID, &rawOfferingID, &req.Title, &description, &applicability, &order,
		&req.CreatedAt, &req.CreatedBy, &retiredAt, &retiredBy, &reason,
		&replaces, &replacedBy,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan requirement: %w", err)
	}

	reqID, err := id.ParseRequirementID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse requirement id: %w", err)
	}
	offeringID, err := id.ParseOfferingID(rawOfferingID)
	if err != nil {
		return nil, fmt.Errorf("parse requirement offering id: %w", err)
	}
	req.ID = reqID
	req.OfferingID = offeringID
	req.Description = description.String
	req.Applicability = models.Applicability(applicability)
	if order.Valid {
		v := int(order.Int64)
		req.Order = &v
	}
	if retiredAt.Valid {
		t := retiredAt.Time
		req.RetiredAt = &t
	}
	req.RetiredBy = retiredBy.String
	req.RetirementReason = reason.String
	if replaces.Valid {
		linked, err := id.ParseRequirementID(replaces.String)
		if err != nil {
			return nil, fmt.Errorf("parse replaces id: %w", err)
		}
		req.Replaces = &linked
	}
	if replacedBy.Valid {
		linked, err := id.ParseRequirementID(replacedBy.String)
		if err != nil {
			return nil, fmt.Errorf("parse replaced_by id: %w", err)
		}
		req.ReplacedBy = &linked
	}
	return &req, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullableRequirementID(v *id.RequirementID) any {
	if v == nil {
		return nil
	}
	return v.String()
}
