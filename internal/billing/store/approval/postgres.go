package approval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"experthub/internal/billing/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
	txcontext "experthub/pkg/platform/tx"
)

const uniqueViolation = "23505"

const approvalColumns = `id, organization_id, offering_id, status,
	payment_reference, payment_amount, paid_at, expires_at,
	created_at, updated_at, created_by`

// Postgres persists approvals. A unique index on (organization_id,
// offering_id) keeps one record per pair.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) querier(ctx context.Context) txcontext.Querier {
	return txcontext.Resolve(ctx, s.db)
}

func (s *Postgres) Create(ctx context.Context, a *models.Approval) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO organization_service_approvals (`+approvalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID.String(), a.OrgID.String(), a.OfferingID.String(), string(a.Status),
		nullable(a.PaymentReference), a.PaymentAmount, nullableTime(a.PaidAt), nullableTime(a.ExpiresAt),
		a.CreatedAt.UTC(), a.UpdatedAt.UTC(), a.CreatedBy,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, approvalID id.ApprovalID) (*models.Approval, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT `+approvalColumns+` FROM organization_service_approvals WHERE id = $1`,
		approvalID.String(),
	)
	return scanApproval(row)
}

func (s *Postgres) FindByOrgOffering(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID) (*models.Approval, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT `+approvalColumns+` FROM organization_service_approvals
		WHERE organization_id = $1 AND offering_id = $2`,
		orgID.String(), offeringID.String(),
	)
	return scanApproval(row)
}

func (s *Postgres) ListByOrg(ctx context.Context, orgID id.OrgID) ([]*models.Approval, error) {
	return s.list(ctx, `
		SELECT `+approvalColumns+` FROM organization_service_approvals
		WHERE organization_id = $1 ORDER BY created_at ASC`,
		orgID.String(),
	)
}

func (s *Postgres) ListPaid(ctx context.Context) ([]*models.Approval, error) {
	return s.list(ctx, `
		SELECT `+approvalColumns+` FROM organization_service_approvals
		WHERE paid_at IS NOT NULL AND expires_at IS NOT NULL
		ORDER BY expires_at ASC`,
	)
}

func (s *Postgres) list(ctx context.Context, query string, args ...any) ([]*models.Approval, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []*models.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Execute runs an atomic read-validate-mutate cycle with the approval row
// locked.
func (s *Postgres) Execute(ctx context.Context, approvalID id.ApprovalID, validate func(*models.Approval) error, mutate func(*models.Approval)) (*models.Approval, error) {
	var result *models.Approval
	err := txcontext.NewSQLRunner(s.db).RunInTx(ctx, func(txCtx context.Context) error {
		row := s.querier(txCtx).QueryRowContext(txCtx, `
			SELECT `+approvalColumns+` FROM organization_service_approvals
			WHERE id = $1 FOR UPDATE`,
			approvalID.String(),
		)
		a, err := scanApproval(row)
		if err != nil {
			return err
		}
		if err := validate(a); err != nil {
			return err
		}
		mutate(a)

		_, err = s.querier(txCtx).ExecContext(txCtx, `
			UPDATE organization_service_approvals SET
				status = $2, payment_reference = $3, payment_amount = $4,
				paid_at = $5, expires_at = $6, updated_at = $7
			WHERE id = $1`,
			a.ID.String(), string(a.Status), nullable(a.PaymentReference), a.PaymentAmount,
			nullableTime(a.PaidAt), nullableTime(a.ExpiresAt), a.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("update approval: %w", err)
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

func scanApproval(row rowScanner) (*models.Approval, error) {
	var (
		a             models.Approval
		rawID         string
		rawOrgID      string
		rawOfferingID string
		rawStatus     string
		reference     sql.NullString
		paidAt        sql.NullTime
		expiresAt     sql.NullTime
	)
	err := row.Scan(&rawID, &rawOrgID, &rawOfferingID, &rawStatus,
		&reference, &a.PaymentAmount, &paidAt, &expiresAt,
		&a.CreatedAt, &a.UpdatedAt, &a.CreatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan approval: %w", err)
	}

	approvalID, err := id.ParseApprovalID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse approval id: %w", err)
	}
	orgID, err := id.ParseOrgID(rawOrgID)
	if err != nil {
		return nil, fmt.Errorf("parse organization id: %w", err)
	}
	offeringID, err := id.ParseOfferingID(rawOfferingID)
	if err != nil {
		return nil, fmt.Errorf("parse offering id: %w", err)
	}
	status, err := models.ParseApprovalStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	a.ID = approvalID
	a.OrgID = orgID
	a.OfferingID = offeringID
	a.Status = status
	a.PaymentReference = reference.String
	a.PaidAt = timePtr(paidAt)
	a.ExpiresAt = timePtr(expiresAt)
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

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
