package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"experthub/internal/directory/store/org"
	"experthub/internal/directory/store/user"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
)

type DirectoryServiceSuite struct {
	suite.Suite
	svc *Service
	ctx context.Context
}

func (s *DirectoryServiceSuite) SetupTest() {
	s.svc = New(user.NewInMemory(), org.NewInMemory())
	s.ctx = context.Background()
}

func TestDirectoryServiceSuite(t *testing.T) {
	suite.Run(t, new(DirectoryServiceSuite))
}

func (s *DirectoryServiceSuite) TestCreateUser() {
	s.Run("creates and retrieves a user", func() {
		created, err := s.svc.CreateUser(s.ctx, "Ada Lovelace", "ada@example.com")
		s.Require().NoError(err)
		s.True(created.Active)

		found, err := s.svc.GetUser(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal("Ada Lovelace", found.Name)
	})

	s.Run("rejects empty name as validation error", func() {
		_, err := s.svc.CreateUser(s.ctx, "   ", "someone@example.com")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects malformed email", func() {
		_, err := s.svc.CreateUser(s.ctx, "No Email", "not-an-address")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects duplicate email with conflict", func() {
		_, err := s.svc.CreateUser(s.ctx, "First", "dup@example.com")
		s.Require().NoError(err)

		_, err = s.svc.CreateUser(s.ctx, "Second", "dup@example.com")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *DirectoryServiceSuite) TestDeactivateUser() {
	s.Run("deactivates an active user", func() {
		created, err := s.svc.CreateUser(s.ctx, "To Deactivate", "bye@example.com")
		s.Require().NoError(err)

		updated, err := s.svc.DeactivateUser(s.ctx, created.ID)
		s.Require().NoError(err)
		s.False(updated.Active)
	})

	s.Run("second deactivation conflicts", func() {
		created, err := s.svc.CreateUser(s.ctx, "Twice", "twice@example.com")
		s.Require().NoError(err)

		_, err = s.svc.DeactivateUser(s.ctx, created.ID)
		s.Require().NoError(err)

		_, err = s.svc.DeactivateUser(s.ctx, created.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown user is not found", func() {
		unknown, err := id.ParseUserID("4fa52b4c-79b6-4dd0-b1a1-2c6b8d9f11aa")
		s.Require().NoError(err)

		_, err = s.svc.DeactivateUser(s.ctx, unknown)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *DirectoryServiceSuite) TestOrganizations() {
	s.Run("creates and lists organizations", func() {
		_, err := s.svc.CreateOrganization(s.ctx, "Acme Assessments")
		s.Require().NoError(err)

		orgs, err := s.svc.ListOrganizations(s.ctx)
		s.Require().NoError(err)
		s.Len(orgs, 1)
	})

	s.Run("duplicate name conflicts case-insensitively", func() {
		_, err := s.svc.CreateOrganization(s.ctx, "Unique Org")
		s.Require().NoError(err)

		_, err = s.svc.CreateOrganization(s.ctx, "UNIQUE ORG")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("deactivation flips status once", func() {
		created, err := s.svc.CreateOrganization(s.ctx, "Short Lived")
		s.Require().NoError(err)

		updated, err := s.svc.DeactivateOrganization(s.ctx, created.ID)
		s.Require().NoError(err)
		s.False(updated.IsActive())

		_, err = s.svc.DeactivateOrganization(s.ctx, created.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}
