package assignment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"experthub/internal/assignment/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
	txcontext "experthub/pkg/platform/tx"
)

const uniqueViolation = "23505"

const assignmentColumns = `id, user_id, organization_id, cv_id, offering_id, role,
	review_status, reviewed_at, reviewed_by, review_notes,
	approved_at, approved_by, rejected_at, rejected_by, rejection_reason,
	training_status, training_invited_at, training_started_at, training_completed_at,
	qualification_id, qualified_at, checkoffs, assigned_by, created_at, updated_at`

// Postgres persists assignments. Check-offs live in a jsonb column; a
// partial unique index on (cv_id, offering_id) where offering_id is not null
// backs the one-per-pair invariant while permitting unassigned shells.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) querier(ctx context.Context) txcontext.Querier {
	return txcontext.Resolve(ctx, s.db)
}

func (s *Postgres) Create(ctx context.Context, a *models.Assignment) error {
	checkoffs, err := json.Marshal(a.Checkoffs)
	if err != nil {
		return fmt.Errorf("marshal checkoffs: %w", err)
	}
	var offeringID sql.NullString
	if a.Offering.IsAssigned() {
		offeringID = sql.NullString{String: a.Offering.ID().String(), Valid: true}
	}
	_, err = s.querier(ctx).ExecContext(ctx, `
		INSERT INTO service_assignments (`+assignmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`,
		a.ID.String(), a.UserID.String(), a.OrgID.String(), a.CVID.String(), offeringID, string(a.Role),
		string(a.ReviewStatus), nullableTime(a.ReviewedAt), nullable(a.ReviewedBy), nullable(a.ReviewNotes),
		nullableTime(a.ApprovedAt), nullable(a.ApprovedBy), nullableTime(a.RejectedAt), nullable(a.RejectedBy), nullable(a.RejectionReason),
		nullable(string(a.TrainingStatus)), nullableTime(a.TrainingInvitedAt), nullableTime(a.TrainingStartedAt), nullableTime(a.TrainingCompletedAt),
		nullableQualificationID(a.QualificationID), nullableTime(a.QualifiedAt), checkoffs, a.AssignedBy, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, assignmentID id.AssignmentID) (*models.Assignment, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT `+assignmentColumns+` FROM service_assignments WHERE id = $1`,
		assignmentID.String(),
	)
	return scanAssignment(row)
}

func (s *Postgres) List(ctx context.Context, filter models.ListFilter) ([]*models.Assignment, error) {
	var (
		conds []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, column+" = $"+strconv.Itoa(len(args)))
	}
	if filter.CVID != nil {
		add("cv_id", filter.CVID.String())
	}
	if filter.UserID != nil {
		add("user_id", filter.UserID.String())
	}
	if filter.OrgID != nil {
		add("organization_id", filter.OrgID.String())
	}
	if filter.OfferingID != nil {
		add("offering_id", filter.OfferingID.String())
	}
	if filter.ReviewStatus != nil {
		add("review_status", string(*filter.ReviewStatus))
	}

	query := `SELECT ` + assignmentColumns + ` FROM service_assignments`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// Delete removes an assignment and returns the deleted row, letting the
// caller settle the CV counter from the state the delete actually saw.
func (s *Postgres) Delete(ctx context.Context, assignmentID id.AssignmentID) (*models.Assignment, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		DELETE FROM service_assignments WHERE id = $1
		RETURNING `+assignmentColumns,
		assignmentID.String(),
	)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("delete assignment: %w", err)
	}
	return a, nil
}

// Execute runs validate-then-mutate on a row locked with FOR UPDATE. Joins
// an outer transaction when one is on the context, so the coordinator can
// lock the CV and its assignment in one unit.
func (s *Postgres) Execute(ctx context.Context, assignmentID id.AssignmentID, validate func(*models.Assignment) error, mutate func(*models.Assignment)) (*models.Assignment, error) {
	var result *models.Assignment
	err := txcontext.NewSQLRunner(s.db).RunInTx(ctx, func(txCtx context.Context) error {
		row := s.querier(txCtx).QueryRowContext(txCtx, `
			SELECT `+assignmentColumns+` FROM service_assignments WHERE id = $1 FOR UPDATE`,
			assignmentID.String(),
		)
		a, err := scanAssignment(row)
		if err != nil {
			return err
		}
		if err := validate(a); err != nil {
			return err
		}
		mutate(a)

		checkoffs, err := json.Marshal(a.Checkoffs)
		if err != nil {
			return fmt.Errorf("marshal checkoffs: %w", err)
		}
		_, err = s.querier(txCtx).ExecContext(txCtx, `
			UPDATE service_assignments SET
				review_status = $2, reviewed_at = $3, reviewed_by = $4, review_notes = $5,
				approved_at = $6, approved_by = $7, rejected_at = $8, rejected_by = $9, rejection_reason = $10,
				training_status = $11, training_invited_at = $12, training_started_at = $13, training_completed_at = $14,
				qualification_id = $15, qualified_at = $16, checkoffs = $17, updated_at = $18
			WHERE id = $1`,
			a.ID.String(),
			string(a.ReviewStatus), nullableTime(a.ReviewedAt), nullable(a.ReviewedBy), nullable(a.ReviewNotes),
			nullableTime(a.ApprovedAt), nullable(a.ApprovedBy), nullableTime(a.RejectedAt), nullable(a.RejectedBy), nullable(a.RejectionReason),
			nullable(string(a.TrainingStatus)), nullableTime(a.TrainingInvitedAt), nullableTime(a.TrainingStartedAt), nullableTime(a.TrainingCompletedAt),
			nullableQualificationID(a.QualificationID), nullableTime(a.QualifiedAt), checkoffs, a.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}
		result = a
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

func scanAssignment(row rowScanner) (*models.Assignment, error) {
	var (
		a            models.Assignment
		rawID        string
		rawUserID    string
		rawOrgID     string
		rawCVID      string
		rawOffering  sql.NullString
		rawRole      string
		rawStatus    string
		rawTraining  sql.NullString
		rawQual      sql.NullString
		rawCheckoffs []byte

		reviewedAt, approvedAt, rejectedAt                sql.NullTime
		invitedAt, startedAt, completedAt, qualifiedAt    sql.NullTime
		reviewedBy, notes, approvedBy, rejectedBy, reason sql.NullString
	)
	err := row.Scan(
		&rawID, &rawUserID, &rawOrgID, &rawCVID, &rawOffering, &rawRole,
		&rawStatus, &reviewedAt, &reviewedBy, &notes,
		&approvedAt, &approvedBy, &rejectedAt, &rejectedBy, &reason,
		&rawTraining, &invitedAt, &startedAt, &completedAt,
		&rawQual, &qualifiedAt, &rawCheckoffs, &a.AssignedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan assignment: %w", err)
	}

	assignmentID, err := id.ParseAssignmentID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse assignment id: %w", err)
	}
	userID, err := id.ParseUserID(rawUserID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	orgID, err := id.ParseOrgID(rawOrgID)
	if err != nil {
		return nil, fmt.Errorf("parse organization id: %w", err)
	}
	cvID, err := id.ParseCVID(rawCVID)
	if err != nil {
		return nil, fmt.Errorf("parse cv id: %w", err)
	}
	a.ID = assignmentID
	a.UserID = userID
	a.OrgID = orgID
	a.CVID = cvID

	if rawOffering.Valid {
		offeringID, err := id.ParseOfferingID(rawOffering.String)
		if err != nil {
			return nil, fmt.Errorf("parse offering id: %w", err)
		}
		a.Offering = models.NewOfferingRef(offeringID)
	} else {
		a.Offering = models.UnassignedOffering()
	}

	role, err := models.ParseRole(rawRole)
	if err != nil {
		return nil, err
	}
	a.Role = role
	status, err := models.ParseReviewStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	a.ReviewStatus = status
	if rawTraining.Valid && rawTraining.String != "" {
		training, err := models.ParseTrainingStatus(rawTraining.String)
		if err != nil {
			return nil, err
		}
		a.TrainingStatus = training
	}
	if rawQual.Valid {
		qualID, err := id.ParseQualificationID(rawQual.String)
		if err != nil {
			return nil, fmt.Errorf("parse qualification id: %w", err)
		}
		a.QualificationID = &qualID
	}
	if len(rawCheckoffs) > 0 {
		if err := json.Unmarshal(rawCheckoffs, &a.Checkoffs); err != nil {
			return nil, fmt.Errorf("unmarshal checkoffs: %w", err)
		}
	}

	a.ReviewedAt = timePtr(reviewedAt)
	a.ReviewedBy = reviewedBy.String
	a.ReviewNotes = notes.String
	a.ApprovedAt = timePtr(approvedAt)
	a.ApprovedBy = approvedBy.String
	a.RejectedAt = timePtr(rejectedAt)
	a.RejectedBy = rejectedBy.String
	a.RejectionReason = reason.String
	a.TrainingInvitedAt = timePtr(invitedAt)
	a.TrainingStartedAt = timePtr(startedAt)
	a.TrainingCompletedAt = timePtr(completedAt)
	a.QualifiedAt = timePtr(qualifiedAt)
	return &a, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullableQualificationID(qualID *id.QualificationID) sql.NullString {
	if qualID == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: qualID.String(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
