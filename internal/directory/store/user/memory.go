// Package user provides stores for the user directory.
package user

import (
	"context"
	"strings"
	"sync"

	"experthub/internal/directory/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
)

// InMemory keeps users in a map guarded by a mutex. Used in tests and
// development wiring.
type InMemory struct {
	mu    sync.RWMutex
	users map[id.UserID]*models.User
}

func NewInMemory() *InMemory {
	return &InMemory{users: make(map[id.UserID]*models.User)}
}

func (s *InMemory) CreateIfEmailAvailable(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *InMemory) List(_ context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*models.User, 0, len(s.users))
	for _, user := range s.users {
		cp := *user
		users = append(users, &cp)
	}
	return users, nil
}

// Execute atomically validates and mutates a user while holding the store
// lock, mirroring the postgres store's SELECT FOR UPDATE semantics.
func (s *InMemory) Execute(_ context.Context, userID id.UserID, validate func(*models.User) error, mutate func(*models.User)) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(user); err != nil {
		return nil, err
	}
	mutate(user)
	cp := *user
	return &cp, nil
}
