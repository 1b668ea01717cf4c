package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "experthub/pkg/domain"
	audit "experthub/pkg/platform/audit"
	txcontext "experthub/pkg/platform/tx"
)

// Store implements audit.Store on PostgreSQL. Appends join the caller's
// transaction when one is carried in the context, so audit rows commit or
// roll back together with the domain mutation they describe.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) querier(ctx context.Context) txcontext.Querier {
	return txcontext.Resolve(ctx, s.db)
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := audit.AuditEvent(event.Action).Category()

	var userID any
	if !event.UserID.IsNil() {
		userID = event.UserID.String()
	}

	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO audit_events (
			id, category, occurred_at, user_id, subject, action,
			decision, reason, request_id, actor_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New(), string(category), event.Timestamp.UTC(), userID,
		event.Subject, event.Action, event.Decision, event.Reason,
		event.RequestID, event.ActorID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT occurred_at, user_id, subject, action, decision, reason, request_id, actor_id
		FROM audit_events
		WHERE user_id = $1
		ORDER BY occurred_at ASC`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event     audit.Event
			occurred  time.Time
			rawUserID sql.NullString
		)
		if err := rows.Scan(
			&occurred, &rawUserID, &event.Subject, &event.Action,
			&event.Decision, &event.Reason, &event.RequestID, &event.ActorID,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Timestamp = occurred
		if rawUserID.Valid {
			parsed, err := id.ParseUserID(rawUserID.String)
			if err != nil {
				return nil, fmt.Errorf("parse audit user id: %w", err)
			}
			event.UserID = parsed
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
