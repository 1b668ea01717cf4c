package lifecycle_test

//go:generate mockgen -source=coordinator.go -destination=mocks/mocks.go -package=mocks QualificationRegistry,Notifier,AuditPublisher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	amodels "experthub/internal/assignment/models"
	assignstore "experthub/internal/assignment/store/assignment"
	cvmodels "experthub/internal/cv/models"
	cvstore "experthub/internal/cv/store/cv"
	"experthub/internal/lifecycle"
	"experthub/internal/lifecycle/mocks"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/requestcontext"
)

type CoordinatorSuite struct {
	suite.Suite

	ctrl        *gomock.Controller
	cvs         *cvstore.InMemory
	assignments *assignstore.InMemory
	registry    *mocks.MockQualificationRegistry
	notifier    *mocks.MockNotifier
	coordinator *lifecycle.Coordinator
	ctx         context.Context

	userID id.UserID
	orgID  id.OrgID
}

func (s *CoordinatorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.cvs = cvstore.NewInMemory()
	s.assignments = assignstore.NewInMemory()
	s.registry = mocks.NewMockQualificationRegistry(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.coordinator = lifecycle.New(s.assignments, s.cvs, s.registry,
		lifecycle.WithNotifier(s.notifier),
	)
	s.ctx = requestcontext.WithActor(context.Background(), "reviewer@example.com")
	s.userID = id.UserID(uuid.New())
	s.orgID = id.OrgID(uuid.New())
}

func (s *CoordinatorSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

// cvUnderReview creates a CV sitting in locked_for_review with the given
// number of pending assignments persisted alongside it.
func (s *CoordinatorSuite) cvUnderReview(pending int) (*cvmodels.CV, []*amodels.Assignment) {
	now := requestcontext.Now(s.ctx)
	cv, err := cvmodels.NewCV(id.CVID(uuid.New()), s.userID, s.orgID, cvmodels.Content{}, "expert@example.com", now)
	s.Require().NoError(err)
	s.Require().NoError(s.cvs.Create(context.Background(), cv))

	cv, err = s.cvs.Execute(context.Background(), cv.ID, func(*cvmodels.CV) error { return nil }, func(cv *cvmodels.CV) {
		cv.Status = cvmodels.StatusLockedForReview
		cv.PendingAssignmentCount = pending
	})
	s.Require().NoError(err)

	assignments := make([]*amodels.Assignment, 0, pending)
	for i := 0; i < pending; i++ {
		a, err := amodels.NewAssignment(
			id.AssignmentID(uuid.New()), s.userID, s.orgID, cv.ID,
			amodels.NewOfferingRef(id.OfferingID(uuid.New())), amodels.RoleRegular,
			"admin@example.com", now,
		)
		s.Require().NoError(err)
		s.Require().NoError(s.assignments.Create(context.Background(), a))
		assignments = append(assignments, a)
	}
	return cv, assignments
}

func (s *CoordinatorSuite) TestDecideDecrementsPendingCount() {
	cv, assignments := s.cvUnderReview(2)
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(1)

	updated, err := s.coordinator.Decide(s.ctx, assignments[0].ID, amodels.Approve{ReviewedBy: "reviewer@example.com"})
	s.Require().NoError(err)
	s.Equal(amodels.ReviewApproved, updated.ReviewStatus)
	s.Equal("reviewer@example.com", updated.ApprovedBy)
	s.NotNil(updated.ApprovedAt)

	after, err := s.cvs.FindByID(context.Background(), cv.ID)
	s.Require().NoError(err)
	s.Equal(1, after.PendingAssignmentCount)
	s.Equal(cvmodels.StatusLockedForReview, after.Status)
}

func (s *CoordinatorSuite) TestLastDecisionLocksCV() {
	cv, assignments := s.cvUnderReview(1)
	s.registry.EXPECT().Find(gomock.Any(), s.userID, assignments[0].Offering.ID()).Return(nil, nil)

	var kinds []string
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(3).Do(func(_ context.Context, n lifecycle.Notification) {
		kinds = append(kinds, n.Kind)
	})

	_, err := s.coordinator.Decide(s.ctx, assignments[0].ID, amodels.Approve{ReviewedBy: "reviewer@example.com"})
	s.Require().NoError(err)

	after, err := s.cvs.FindByID(context.Background(), cv.ID)
	s.Require().NoError(err)
	s.Equal(cvmodels.StatusLockedFinal, after.Status)
	s.Zero(after.PendingAssignmentCount)
	s.NotNil(after.LockedAt)
	s.Equal("reviewer@example.com", after.LockedBy)

	s.Equal([]string{
		lifecycle.NotificationAssignmentDecided,
		lifecycle.NotificationCVLocked,
		lifecycle.NotificationTrainingRequired,
	}, kinds)
}

func (s *CoordinatorSuite) TestLockResolvesTraining() {
	s.Run("registry hit resolves to not_required with the qualification attached", func() {
		_, assignments := s.cvUnderReview(1)
		qualID := id.QualificationID(uuid.New())
		passedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		s.registry.EXPECT().Find(gomock.Any(), s.userID, assignments[0].Offering.ID()).
			Return(&lifecycle.QualificationRecord{ID: qualID, PassedAt: passedAt}, nil)
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(2)

		_, err := s.coordinator.Decide(s.ctx, assignments[0].ID, amodels.Approve{ReviewedBy: "reviewer@example.com"})
		s.Require().NoError(err)

		resolved, err := s.assignments.FindByID(context.Background(), assignments[0].ID)
		s.Require().NoError(err)
		s.Equal(amodels.TrainingNotRequired, resolved.TrainingStatus)
		s.Require().NotNil(resolved.QualificationID)
		s.Equal(qualID, *resolved.QualificationID)
		s.Require().NotNil(resolved.QualifiedAt)
		s.Equal(passedAt, *resolved.QualifiedAt)
		s.True(resolved.IsQualified())
	})

	s.Run("registry miss resolves to required", func() {
		_, assignments := s.cvUnderReview(1)
		s.registry.EXPECT().Find(gomock.Any(), s.userID, assignments[0].Offering.ID()).Return(nil, nil)
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(3)

		_, err := s.coordinator.Decide(s.ctx, assignments[0].ID, amodels.Approve{ReviewedBy: "reviewer@example.com"})
		s.Require().NoError(err)

		resolved, err := s.assignments.FindByID(context.Background(), assignments[0].ID)
		s.Require().NoError(err)
		s.Equal(amodels.TrainingRequired, resolved.TrainingStatus)
		s.Nil(resolved.QualificationID)
		s.False(resolved.IsQualified())
	})

	s.Run("rejected assignments are not resolved", func() {
		_, assignments := s.cvUnderReview(1)
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(2)

		_, err := s.coordinator.Decide(s.ctx, assignments[0].ID, amodels.Reject{ReviewedBy: "reviewer@example.com", Reason: "insufficient experience"})
		s.Require().NoError(err)

		resolved, err := s.assignments.FindByID(context.Background(), assignments[0].ID)
		s.Require().NoError(err)
		s.Empty(resolved.TrainingStatus)
	})
}

func (s *CoordinatorSuite) TestRevertReopensCounter() {
	cv, assignments := s.cvUnderReview(2)
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(2)

	_, err := s.coordinator.Decide(s.ctx, assignments[0].ID, amodels.Approve{ReviewedBy: "reviewer@example.com"})
	s.Require().NoError(err)

	reverted, err := s.coordinator.Decide(s.ctx, assignments[0].ID, amodels.Revert{ReviewedBy: "reviewer@example.com"})
	s.Require().NoError(err)
	s.Equal(amodels.ReviewPending, reverted.ReviewStatus)

	after, err := s.cvs.FindByID(context.Background(), cv.ID)
	s.Require().NoError(err)
	s.Equal(2, after.PendingAssignmentCount)
}

func (s *CoordinatorSuite) TestDecisionClearsOppositeFields() {
	_, assignments := s.cvUnderReview(2)
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(2)

	_, err := s.coordinator.Decide(s.ctx, assignments[0].ID, amodels.Approve{ReviewedBy: "first@example.com", Notes: "looks good"})
	s.Require().NoError(err)

	rejected, err := s.coordinator.Decide(s.ctx, assignments[0].ID, amodels.Reject{ReviewedBy: "second@example.com", Reason: "stale evidence"})
	s.Require().NoError(err)

	s.Equal(amodels.ReviewRejected, rejected.ReviewStatus)
	s.Nil(rejected.ApprovedAt)
	s.Empty(rejected.ApprovedBy)
	s.NotNil(rejected.RejectedAt)
	s.Equal("second@example.com", rejected.RejectedBy)
	s.Equal("stale evidence", rejected.RejectionReason)
}

func (s *CoordinatorSuite) TestDecideOnLockedCVFails() {
	_, assignments := s.cvUnderReview(2)
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(1)

	_, err := s.coordinator.Decide(s.ctx, assignments[0].ID, amodels.Reject{ReviewedBy: "reviewer@example.com", Reason: "duplicate"})
	s.Require().NoError(err)

	// Force the lock with one assignment still formally pending so the
	// guard, not the counter, is what rejects the next decision.
	cv := assignments[0].CVID
	_, err = s.cvs.Execute(context.Background(), cv, func(*cvmodels.CV) error { return nil }, func(cv *cvmodels.CV) {
		cv.Status = cvmodels.StatusLockedFinal
	})
	s.Require().NoError(err)

	_, err = s.coordinator.Decide(s.ctx, assignments[1].ID, amodels.Approve{ReviewedBy: "reviewer@example.com"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *CoordinatorSuite) TestDecideRepeatedDecisionFails() {
	_, assignments := s.cvUnderReview(2)
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(1)

	_, err := s.coordinator.Decide(s.ctx, assignments[0].ID, amodels.Approve{ReviewedBy: "reviewer@example.com"})
	s.Require().NoError(err)

	_, err = s.coordinator.Decide(s.ctx, assignments[0].ID, amodels.Approve{ReviewedBy: "reviewer@example.com"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *CoordinatorSuite) TestEvaluateAutoLock() {
	s.Run("locks when nothing is pending", func() {
		cv, _ := s.cvUnderReview(0)
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(1)

		locked, err := s.coordinator.EvaluateAutoLock(s.ctx, cv.ID)
		s.Require().NoError(err)
		s.Equal(cvmodels.StatusLockedFinal, locked.Status)
	})

	s.Run("is a no-op on an already locked cv", func() {
		cv, _ := s.cvUnderReview(0)
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(1)

		locked, err := s.coordinator.EvaluateAutoLock(s.ctx, cv.ID)
		s.Require().NoError(err)
		lockedAt := locked.LockedAt

		again, err := s.coordinator.EvaluateAutoLock(s.ctx, cv.ID)
		s.Require().NoError(err)
		s.Equal(cvmodels.StatusLockedFinal, again.Status)
		s.Equal(lockedAt, again.LockedAt)
	})

	s.Run("leaves a cv with pending assignments alone", func() {
		cv, _ := s.cvUnderReview(1)

		unchanged, err := s.coordinator.EvaluateAutoLock(s.ctx, cv.ID)
		s.Require().NoError(err)
		s.Equal(cvmodels.StatusLockedForReview, unchanged.Status)
	})
}

func (s *CoordinatorSuite) TestRequestClockPinsDecisionTimestamps() {
	_, assignments := s.cvUnderReview(2)
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(1)

	pinned := time.Date(2026, 2, 2, 8, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(s.ctx, pinned)

	updated, err := s.coordinator.Decide(ctx, assignments[0].ID, amodels.Approve{ReviewedBy: "reviewer@example.com"})
	s.Require().NoError(err)
	s.Require().NotNil(updated.ApprovedAt)
	s.Equal(pinned, *updated.ApprovedAt)
	s.Equal(pinned, updated.UpdatedAt)
}

// gatedAssignmentStore stalls the first FindByID for one assignment until
// released, so a competing decision can land between the lookup and the
// row-locked update.
type gatedAssignmentStore struct {
	*assignstore.InMemory
	target  id.AssignmentID
	arrived chan struct{}
	release chan struct{}
	gated   atomic.Bool
}

func (g *gatedAssignmentStore) FindByID(ctx context.Context, assignmentID id.AssignmentID) (*amodels.Assignment, error) {
	if assignmentID == g.target && g.gated.CompareAndSwap(false, true) {
		close(g.arrived)
		<-g.release
	}
	return g.InMemory.FindByID(ctx, assignmentID)
}

func (s *CoordinatorSuite) TestConcurrentDecisionsSettleCounterOnce() {
	cv, assignments := s.cvUnderReview(2)

	gate := &gatedAssignmentStore{
		InMemory: s.assignments,
		target:   assignments[0].ID,
		arrived:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	coordinator := lifecycle.New(gate, s.cvs, s.registry, lifecycle.WithNotifier(s.notifier))
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(2)

	done := make(chan error, 1)
	go func() {
		_, err := coordinator.Decide(s.ctx, assignments[0].ID, amodels.Reject{ReviewedBy: "reviewer@example.com", Reason: "incomplete"})
		done <- err
	}()
	<-gate.arrived

	_, err := coordinator.Decide(s.ctx, assignments[0].ID, amodels.Approve{ReviewedBy: "reviewer@example.com"})
	s.Require().NoError(err)

	close(gate.release)
	s.Require().NoError(<-done)

	// Only the first decision moved the assignment out of pending_review,
	// so the counter drops exactly once and the second pending assignment
	// keeps the CV under review.
	after, err := s.cvs.FindByID(context.Background(), cv.ID)
	s.Require().NoError(err)
	s.Equal(1, after.PendingAssignmentCount)
	s.Equal(cvmodels.StatusLockedForReview, after.Status)

	resolved, err := s.assignments.FindByID(context.Background(), assignments[0].ID)
	s.Require().NoError(err)
	s.Equal(amodels.ReviewRejected, resolved.ReviewStatus)
}
