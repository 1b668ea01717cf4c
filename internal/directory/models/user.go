package models

import (
	"strings"
	"time"

	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
)

// User is an expert known to the platform. Users are reference data: the
// credential lifecycle reads them but never mutates them mid-flight.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - Email is non-empty and contains exactly one @
//   - CreatedAt is immutable after construction
type User struct {
	ID        id.UserID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewUser(userID id.UserID, name, email string, now time.Time) (*User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user name must be 128 characters or less")
	}
	if strings.Count(email, "@") != 1 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user email must be a valid address")
	}
	return &User{
		ID:        userID,
		Name:      name,
		Email:     email,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (u *User) Deactivate(now time.Time) error {
	if !u.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "user is already inactive")
	}
	u.Active = false
	u.UpdatedAt = now
	return nil
}
