package qualification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"experthub/internal/qualification/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
	txcontext "experthub/pkg/platform/tx"
)

const uniqueViolation = "23505"

const qualificationColumns = `id, user_id, offering_id, training_passed_at,
	original_assignment_id, original_organization_id, created_at, created_by`

// Postgres persists qualifications. A unique index on (user_id, offering_id)
// backs the at-most-one-per-pair invariant; the redis pair lock in the
// service only narrows the race window, this index decides it.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) querier(ctx context.Context) txcontext.Querier {
	return txcontext.Resolve(ctx, s.db)
}

func (s *Postgres) CreateIfAbsent(ctx context.Context, q *models.Qualification) error {
	var assignmentID, orgID sql.NullString
	if q.OriginalAssignmentID != nil {
		assignmentID = sql.NullString{String: q.OriginalAssignmentID.String(), Valid: true}
	}
	if q.OriginalOrgID != nil {
		orgID = sql.NullString{String: q.OriginalOrgID.String(), Valid: true}
	}
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO qualifications (`+qualificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.ID.String(), q.UserID.String(), q.OfferingID.String(), q.TrainingPassedAt.UTC(),
		assignmentID, orgID, q.CreatedAt.UTC(), q.CreatedBy,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert qualification: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, qualID id.QualificationID) (*models.Qualification, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT `+qualificationColumns+` FROM qualifications WHERE id = $1`,
		qualID.String(),
	)
	return scanQualification(row)
}

func (s *Postgres) FindByUserOffering(ctx context.Context, userID id.UserID, offeringID id.OfferingID) (*models.Qualification, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT `+qualificationColumns+` FROM qualifications
		WHERE user_id = $1 AND offering_id = $2`,
		userID.String(), offeringID.String(),
	)
	return scanQualification(row)
}

func (s *Postgres) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Qualification, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT `+qualificationColumns+` FROM qualifications
		WHERE user_id = $1 ORDER BY created_at ASC`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list qualifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Qualification
	for rows.Next() {
		q, err := scanQualification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Postgres) Delete(ctx context.Context, qualID id.QualificationID) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		DELETE FROM qualifications WHERE id = $1`,
		qualID.String(),
	)
	if err != nil {
		return fmt.Errorf("delete qualification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete qualification: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQualification(row rowScanner) (*models.Qualification, error) {
	var (
		q               models.Qualification
		rawID           string
		rawUserID       string
		rawOfferingID   string
		rawAssignmentID sql.NullString
		rawOrgID        sql.NullString
	)
	err := row.Scan(&rawID, &rawUserID, &rawOfferingID, &q.TrainingPassedAt,
		&rawAssignmentID, &rawOrgID, &q.CreatedAt, &q.CreatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan qualification: %w", err)
	}

	qualID, err := id.ParseQualificationID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse qualification id: %w", err)
	}
	userID, err := id.ParseUserID(rawUserID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	offeringID, err := id.ParseOfferingID(rawOfferingID)
	if err != nil {
		return nil, fmt.Errorf("parse offering id: %w", err)
	}
	q.ID = qualID
	q.UserID = userID
	q.OfferingID = offeringID

	if rawAssignmentID.Valid {
		assignmentID, err := id.ParseAssignmentID(rawAssignmentID.String)
		if err != nil {
			return nil, fmt.Errorf("parse assignment id: %w", err)
		}
		q.OriginalAssignmentID = &assignmentID
	}
	if rawOrgID.Valid {
		orgID, err := id.ParseOrgID(rawOrgID.String)
		if err != nil {
			return nil, fmt.Errorf("parse organization id: %w", err)
		}
		q.OriginalOrgID = &orgID
	}
	return &q, nil
}
