package user

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

// Postgres persists users. A unique index on lower(email) backs the
// email-uniqueness invariant.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) querier(ctx context.Context) txcontext.Querier {
	return txcontext.Resolve(ctx, s.db)
}

func (s *Postgres) CreateIfEmailAvailable(ctx context.Context, user *models.User) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO users (id, name, email, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID.String(), user.Name, user.Email, user.Active,
		user.CreatedAt.UTC(), user.UpdatedAt.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT id, name, email, active, created_at, updated_at
		FROM users WHERE id = $1`,
		userID.String(),
	)
	return scanUser(row)
}

func (s *Postgres) List(ctx context.Context) ([]*models.User, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT id, name, email, active, created_at, updated_at
		FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Execute runs validate-then-mutate on a row locked with FOR UPDATE. Callers
// outside a transaction get a dedicated one for the duration of the call.
func (s *Postgres) Execute(ctx context.Context, userID id.UserID, validate func(*models.User) error, mutate func(*models.User)) (*models.User, error) {
	var result *models.User
	err := txcontext.NewSQLRunner(s.db).RunInTx(ctx, func(txCtx context.Context) error {
		row := s.querier(txCtx).QueryRowContext(txCtx, `
			SELECT id, name, email, active, created_at, updated_at
			FROM users WHERE id = $1 FOR UPDATE`,
			userID.String(),
		)
		user, err := scanUser(row)
		if err != nil {
			return err
		}
		if err := validate(user); err != nil {
			return err
		}
		mutate(user)

		_, err = s.querier(txCtx).ExecContext(txCtx, `
			UPDATE users SET name = $2, email = $3, active = $4, updated_at = $5
			WHERE id = $1`,
			user.ID.String(), user.Name, user.Email, user.Active, user.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		result = user
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

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user  models.User
		rawID string
	)
	if err := row.Scan(&rawID, &user.Name, &user.Email, &user.Active, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	userID, err := id.ParseUserID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	user.ID = userID
	return &user, nil
}
