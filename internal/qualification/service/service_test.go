package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"experthub/internal/qualification/models"
	qualstore "experthub/internal/qualification/store/qualification"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/platform/sentinel"
	"experthub/pkg/requestcontext"
)

type QualificationServiceSuite struct {
	suite.Suite

	store   *qualstore.InMemory
	service *Service
	ctx     context.Context
}

func (s *QualificationServiceSuite) SetupTest() {
	s.store = qualstore.NewInMemory()
	s.service = New(s.store)
	s.ctx = requestcontext.WithActor(context.Background(), "admin@example.com")
}

func TestQualificationServiceSuite(t *testing.T) {
	suite.Run(t, new(QualificationServiceSuite))
}

func (s *QualificationServiceSuite) params() CreateParams {
	return CreateParams{
		UserID:     id.UserID(uuid.New()),
		OfferingID: id.OfferingID(uuid.New()),
		PassedAt:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		CreatedBy:  "admin@example.com",
	}
}

func (s *QualificationServiceSuite) TestCreate() {
	s.Run("records a qualification once per pair", func() {
		params := s.params()

		q, err := s.service.Create(s.ctx, params)
		s.Require().NoError(err)
		s.Equal(params.UserID, q.UserID)
		s.Equal(params.OfferingID, q.OfferingID)
		s.Equal(params.PassedAt, q.TrainingPassedAt)

		_, err = s.service.Create(s.ctx, params)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("same user may qualify for several offerings", func() {
		params := s.params()
		_, err := s.service.Create(s.ctx, params)
		s.Require().NoError(err)

		params.OfferingID = id.OfferingID(uuid.New())
		_, err = s.service.Create(s.ctx, params)
		s.NoError(err)
	})

	s.Run("rejects missing pass timestamp", func() {
		params := s.params()
		params.PassedAt = time.Time{}

		_, err := s.service.Create(s.ctx, params)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *QualificationServiceSuite) TestRecordPass() {
	s.Run("creates on first pass", func() {
		params := s.params()
		assignmentID := id.AssignmentID(uuid.New())
		orgID := id.OrgID(uuid.New())
		params.OriginalAssignmentID = &assignmentID
		params.OriginalOrgID = &orgID

		q, err := s.service.RecordPass(s.ctx, params)
		s.Require().NoError(err)
		s.Require().NotNil(q.OriginalAssignmentID)
		s.Equal(assignmentID, *q.OriginalAssignmentID)
		s.Require().NotNil(q.OriginalOrgID)
		s.Equal(orgID, *q.OriginalOrgID)
	})

	s.Run("returns the existing record when the pair already qualified", func() {
		params := s.params()
		first, err := s.service.RecordPass(s.ctx, params)
		s.Require().NoError(err)

		later := params
		later.PassedAt = params.PassedAt.Add(48 * time.Hour)
		second, err := s.service.RecordPass(s.ctx, later)
		s.Require().NoError(err)
		s.Equal(first.ID, second.ID)
		s.Equal(first.TrainingPassedAt, second.TrainingPassedAt)
	})

	s.Run("loser of a concurrent pass reads the winner's record", func() {
		params := s.params()

		const attempts = 8
		results := make([]*models.Qualification, attempts)
		errs := make([]error, attempts)

		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = s.service.RecordPass(s.ctx, params)
			}(i)
		}
		wg.Wait()

		for i := 0; i < attempts; i++ {
			s.Require().NoError(errs[i])
			s.Require().NotNil(results[i])
			s.Equal(results[0].ID, results[i].ID)
		}

		list, err := s.store.ListByUser(context.Background(), params.UserID)
		s.Require().NoError(err)
		s.Len(list, 1)
	})
}

func (s *QualificationServiceSuite) TestLookup() {
	s.Run("finds a qualification by pair", func() {
		params := s.params()
		created, err := s.service.Create(s.ctx, params)
		s.Require().NoError(err)

		q, err := s.service.Lookup(s.ctx, params.UserID, params.OfferingID)
		s.Require().NoError(err)
		s.Equal(created.ID, q.ID)
	})

	s.Run("missing pair is not found", func() {
		_, err := s.service.Lookup(s.ctx, id.UserID(uuid.New()), id.OfferingID(uuid.New()))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *QualificationServiceSuite) TestListByUser() {
	params := s.params()
	_, err := s.service.Create(s.ctx, params)
	s.Require().NoError(err)

	other := params
	other.OfferingID = id.OfferingID(uuid.New())
	_, err = s.service.Create(s.ctx, other)
	s.Require().NoError(err)

	list, err := s.service.ListByUser(s.ctx, params.UserID)
	s.Require().NoError(err)
	s.Len(list, 2)

	list, err = s.service.ListByUser(s.ctx, id.UserID(uuid.New()))
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *QualificationServiceSuite) TestDelete() {
	s.Run("removes the record and frees the pair", func() {
		params := s.params()
		created, err := s.service.Create(s.ctx, params)
		s.Require().NoError(err)

		s.Require().NoError(s.service.Delete(s.ctx, created.ID))

		_, err = s.store.FindByUserOffering(context.Background(), params.UserID, params.OfferingID)
		s.ErrorIs(err, sentinel.ErrNotFound)

		_, err = s.service.Create(s.ctx, params)
		s.NoError(err)
	})

	s.Run("unknown qualification is not found", func() {
		err := s.service.Delete(s.ctx, id.QualificationID(uuid.New()))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
