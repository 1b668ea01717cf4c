package cv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"experthub/internal/cv/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
	txcontext "experthub/pkg/platform/tx"
)

const uniqueViolation = "23505"

const cvColumns = `id, user_id, organization_id, version, status, content,
	pending_assignment_count, created_at, updated_at, created_by,
	submitted_at, payment_reference, payment_amount, paid_at,
	review_started_at, unlocked_at, unlocked_by, unlock_reason,
	locked_at, locked_by`

// Postgres persists CVs. Content sections live in a jsonb column; a unique
// index on (user_id, organization_id, version) backs the strictly-increasing
// version invariant.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) querier(ctx context.Context) txcontext.Querier {
	return txcontext.Resolve(ctx, s.db)
}

// Create inserts a CV, computing the next version inside a transaction. A
// concurrent creator for the same pair loses on the unique index and
// surfaces as ErrConflict.
func (s *Postgres) Create(ctx context.Context, cv *models.CV) error {
	return txcontext.NewSQLRunner(s.db).RunInTx(ctx, func(txCtx context.Context) error {
		row := s.querier(txCtx).QueryRowContext(txCtx, `
			SELECT COALESCE(MAX(version), 0) + 1 FROM expert_cvs
			WHERE user_id = $1 AND organization_id = $2`,
			cv.UserID.String(), cv.OrgID.String(),
		)
		if err := row.Scan(&cv.Version); err != nil {
			return fmt.Errorf("allocate cv version: %w", err)
		}

		content, err := json.Marshal(cv.Content)
		if err != nil {
			return fmt.Errorf("marshal cv content: %w", err)
		}
		_, err = s.querier(txCtx).ExecContext(txCtx, `
			INSERT INTO expert_cvs (`+cvColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
			cv.ID.String(), cv.UserID.String(), cv.OrgID.String(),
			cv.Version, string(cv.Status), content,
			cv.PendingAssignmentCount, cv.CreatedAt.UTC(), cv.UpdatedAt.UTC(), cv.CreatedBy,
			nullableTime(cv.SubmittedAt), nullable(cv.PaymentReference), cv.PaymentAmount, nullableTime(cv.PaidAt),
			nullableTime(cv.ReviewStartedAt), nullableTime(cv.UnlockedAt), nullable(cv.UnlockedBy), nullable(cv.UnlockReason),
			nullableTime(cv.LockedAt), nullable(cv.LockedBy),
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert cv: %w", err)
		}
		return nil
	})
}

func (s *Postgres) FindByID(ctx context.Context, cvID id.CVID) (*models.CV, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT `+cvColumns+` FROM expert_cvs WHERE id = $1`,
		cvID.String(),
	)
	return scanCV(row)
}

func (s *Postgres) LatestByUserOrg(ctx context.Context, userID id.UserID, orgID id.OrgID) (*models.CV, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT `+cvColumns+` FROM expert_cvs
		WHERE user_id = $1 AND organization_id = $2
		ORDER BY version DESC LIMIT 1`,
		userID.String(), orgID.String(),
	)
	return scanCV(row)
}

func (s *Postgres) ListByUserOrg(ctx context.Context, userID id.UserID, orgID id.OrgID) ([]*models.CV, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT `+cvColumns+` FROM expert_cvs
		WHERE user_id = $1 AND organization_id = $2
		ORDER BY version DESC`,
		userID.String(), orgID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list cvs: %w", err)
	}
	defer rows.Close()

	var cvs []*models.CV
	for rows.Next() {
		cv, err := scanCV(rows)
		if err != nil {
			return nil, err
		}
		cvs = append(cvs, cv)
	}
	return cvs, rows.Err()
}

// Execute runs validate-then-mutate on a row locked with FOR UPDATE. Joins
// an outer transaction when one is on the context, so assignment decisions
// and the CV counter update commit together.
func (s *Postgres) Execute(ctx context.Context, cvID id.CVID, validate func(*models.CV) error, mutate func(*models.CV)) (*models.CV, error) {
	var result *models.CV
	err := txcontext.NewSQLRunner(s.db).RunInTx(ctx, func(txCtx context.Context) error {
		row := s.querier(txCtx).QueryRowContext(txCtx, `
			SELECT `+cvColumns+` FROM expert_cvs WHERE id = $1 FOR UPDATE`,
			cvID.String(),
		)
		cv, err := scanCV(row)
		if err != nil {
			return err
		}
		if err := validate(cv); err != nil {
			return err
		}
		mutate(cv)

		content, err := json.Marshal(cv.Content)
		if err != nil {
			return fmt.Errorf("marshal cv content: %w", err)
		}
		_, err = s.querier(txCtx).ExecContext(txCtx, `
			UPDATE expert_cvs SET
				status = $2, content = $3, pending_assignment_count = $4, updated_at = $5,
				submitted_at = $6, payment_reference = $7, payment_amount = $8, paid_at = $9,
				review_started_at = $10, unlocked_at = $11, unlocked_by = $12, unlock_reason = $13,
				locked_at = $14, locked_by = $15
			WHERE id = $1`,
			cv.ID.String(), string(cv.Status), content, cv.PendingAssignmentCount, cv.UpdatedAt.UTC(),
			nullableTime(cv.SubmittedAt), nullable(cv.PaymentReference), cv.PaymentAmount, nullableTime(cv.PaidAt),
			nullableTime(cv.ReviewStartedAt), nullableTime(cv.UnlockedAt), nullable(cv.UnlockedBy), nullable(cv.UnlockReason),
			nullableTime(cv.LockedAt), nullable(cv.LockedBy),
		)
		if err != nil {
			return fmt.Errorf("update cv: %w", err)
		}
		result = cv
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

func scanCV(row rowScanner) (*models.CV, error) {
	var (
		cv         models.CV
		rawID      string
		rawUserID  string
		rawOrgID   string
		rawStatus  string
		rawContent []byte

		submittedAt, paidAt, reviewStartedAt, unlockedAt, lockedAt sql.NullTime
		paymentRef, unlockedBy, unlockReason, lockedBy             sql.NullString
	)
	err := row.Scan(
		&rawID, &rawUserID, &rawOrgID, &cv.Version, &rawStatus, &rawContent,
		&cv.PendingAssignmentCount, &cv.CreatedAt, &cv.UpdatedAt, &cv.CreatedBy,
		&submittedAt, &paymentRef, &cv.PaymentAmount, &paidAt,
		&reviewStartedAt, &unlockedAt, &unlockedBy, &unlockReason,
		&lockedAt, &lockedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan cv: %w", err)
	}

	cvID, err := id.ParseCVID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse cv id: %w", err)
	}
	userID, err := id.ParseUserID(rawUserID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	orgID, err := id.ParseOrgID(rawOrgID)
	if err != nil {
		return nil, fmt.Errorf("parse organization id: %w", err)
	}
	status, err := models.ParseCVStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawContent, &cv.Content); err != nil {
		return nil, fmt.Errorf("unmarshal cv content: %w", err)
	}

	cv.ID = cvID
	cv.UserID = userID
	cv.OrgID = orgID
	cv.Status = status
	cv.SubmittedAt = timePtr(submittedAt)
	cv.PaymentReference = paymentRef.String
	cv.PaidAt = timePtr(paidAt)
	cv.ReviewStartedAt = timePtr(reviewStartedAt)
	cv.UnlockedAt = timePtr(unlockedAt)
	cv.UnlockedBy = unlockedBy.String
	cv.UnlockReason = unlockReason.String
	cv.LockedAt = timePtr(lockedAt)
	cv.LockedBy = lockedBy.String
	return &cv, nil
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

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
