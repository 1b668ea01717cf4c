package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"experthub/internal/assignment/models"
	assignstore "experthub/internal/assignment/store/assignment"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/requestcontext"
)

// stubCVGateway serves CV slices from a map and tracks counter adjustments.
type stubCVGateway struct {
	cvs    map[id.CVID]*CVInfo
	deltas map[id.CVID]int
}

func newStubCVGateway() *stubCVGateway {
	return &stubCVGateway{cvs: map[id.CVID]*CVInfo{}, deltas: map[id.CVID]int{}}
}

func (g *stubCVGateway) Find(_ context.Context, cvID id.CVID) (*CVInfo, error) {
	cv, ok := g.cvs[cvID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "cv not found")
	}
	copied := *cv
	return &copied, nil
}

func (g *stubCVGateway) AdjustPendingCount(_ context.Context, cvID id.CVID, delta int) error {
	g.deltas[cvID] += delta
	return nil
}

type stubCatalog struct {
	requirements map[id.RequirementID]RequirementInfo
	active       []RequirementInfo
}

func (c *stubCatalog) ActiveForRole(context.Context, id.OfferingID, models.Role) ([]RequirementInfo, error) {
	return c.active, nil
}

func (c *stubCatalog) Find(_ context.Context, requirementID id.RequirementID) (*RequirementInfo, error) {
	info, ok := c.requirements[requirementID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "requirement not found")
	}
	return &info, nil
}

type stubRegistry struct {
	passes []id.OfferingID
	result QualificationInfo
}

func (r *stubRegistry) RecordPass(_ context.Context, _ id.UserID, offeringID id.OfferingID, _ id.AssignmentID, _ id.OrgID, _ time.Time) (*QualificationInfo, error) {
	r.passes = append(r.passes, offeringID)
	result := r.result
	return &result, nil
}

type AssignmentServiceSuite struct {
	suite.Suite

	store    *assignstore.InMemory
	cvs      *stubCVGateway
	catalog  *stubCatalog
	registry *stubRegistry
	service  *Service
	ctx      context.Context

	cvID   id.CVID
	userID id.UserID
	orgID  id.OrgID
}

func (s *AssignmentServiceSuite) SetupTest() {
	s.store = assignstore.NewInMemory()
	s.cvs = newStubCVGateway()
	s.catalog = &stubCatalog{requirements: map[id.RequirementID]RequirementInfo{}}
	s.registry = &stubRegistry{result: QualificationInfo{
		ID:       id.QualificationID(uuid.New()),
		PassedAt: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	}}
	s.service = New(s.store, s.cvs,
		WithRequirementCatalog(s.catalog),
		WithTrainingRegistry(s.registry),
	)
	s.ctx = requestcontext.WithActor(context.Background(), "admin@example.com")

	s.cvID = id.CVID(uuid.New())
	s.userID = id.UserID(uuid.New())
	s.orgID = id.OrgID(uuid.New())
	s.cvs.cvs[s.cvID] = &CVInfo{
		ID:               s.cvID,
		UserID:           s.userID,
		OrgID:            s.orgID,
		Status:           "draft",
		ServicesEditable: true,
	}
}

// SetupSubTest resets the assignment store so each subtest starts from a
// clean (cv, offering) slate while keeping the method-level catalog and
// gateway fixtures.
func (s *AssignmentServiceSuite) SetupSubTest() {
	s.store = assignstore.NewInMemory()
	s.service = New(s.store, s.cvs,
		WithRequirementCatalog(s.catalog),
		WithTrainingRegistry(s.registry),
	)
}

func TestAssignmentServiceSuite(t *testing.T) {
	suite.Run(t, new(AssignmentServiceSuite))
}

func (s *AssignmentServiceSuite) create(offeringID id.OfferingID) *models.Assignment {
	a, err := s.service.Create(s.ctx, CreateParams{
		CVID:       s.cvID,
		OfferingID: &offeringID,
		AssignedBy: "admin@example.com",
	})
	s.Require().NoError(err)
	return a
}

// approve short-circuits the review decision so training tests can start
// from an approved assignment without involving the coordinator.
func (s *AssignmentServiceSuite) approve(assignmentID id.AssignmentID) {
	_, err := s.store.Execute(context.Background(), assignmentID,
		func(*models.Assignment) error { return nil },
		func(a *models.Assignment) {
			a.ApplyDecision(models.Approve{ReviewedBy: "reviewer@example.com"}, time.Now())
		},
	)
	s.Require().NoError(err)
}

func (s *AssignmentServiceSuite) TestCreate() {
	s.Run("attaches an offering to a draft cv and bumps the counter", func() {
		a := s.create(id.OfferingID(uuid.New()))

		s.Equal(s.userID, a.UserID)
		s.Equal(s.orgID, a.OrgID)
		s.Equal(models.ReviewPending, a.ReviewStatus)
		s.Equal(models.RoleRegular, a.Role)
		s.Equal(1, s.cvs.deltas[s.cvID])
	})

	s.Run("rejects a duplicate offering on the same cv", func() {
		offeringID := id.OfferingID(uuid.New())
		s.create(offeringID)

		_, err := s.service.Create(s.ctx, CreateParams{CVID: s.cvID, OfferingID: &offeringID, AssignedBy: "admin@example.com"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("allows several unassigned shells", func() {
		a, err := s.service.Create(s.ctx, CreateParams{CVID: s.cvID, AssignedBy: "admin@example.com"})
		s.Require().NoError(err)
		s.False(a.Offering.IsAssigned())

		_, err = s.service.Create(s.ctx, CreateParams{CVID: s.cvID, AssignedBy: "admin@example.com"})
		s.NoError(err)
	})

	s.Run("rejects once the cv left draft", func() {
		s.cvs.cvs[s.cvID].ServicesEditable = false

		offeringID := id.OfferingID(uuid.New())
		_, err := s.service.Create(s.ctx, CreateParams{CVID: s.cvID, OfferingID: &offeringID, AssignedBy: "admin@example.com"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("unknown cv is not found", func() {
		offeringID := id.OfferingID(uuid.New())
		_, err := s.service.Create(s.ctx, CreateParams{CVID: id.CVID(uuid.New()), OfferingID: &offeringID, AssignedBy: "admin@example.com"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *AssignmentServiceSuite) TestBulkCreate() {
	offerings := []id.OfferingID{
		id.OfferingID(uuid.New()),
		id.OfferingID(uuid.New()),
		id.OfferingID(uuid.New()),
	}
	s.create(offerings[0])

	created, err := s.service.BulkCreate(s.ctx, s.cvID, offerings, models.RoleLead, "admin@example.com")
	s.Require().NoError(err)
	s.Len(created, 2)
	for _, a := range created {
		s.Equal(models.RoleLead, a.Role)
	}
	s.Equal(3, s.cvs.deltas[s.cvID])
}

func (s *AssignmentServiceSuite) TestDelete() {
	s.Run("removes a draft-time assignment and releases the counter", func() {
		a := s.create(id.OfferingID(uuid.New()))

		s.Require().NoError(s.service.Delete(s.ctx, a.ID))
		s.Equal(0, s.cvs.deltas[s.cvID])

		_, err := s.service.Get(s.ctx, a.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("decided assignments leave the counter alone", func() {
		a := s.create(id.OfferingID(uuid.New()))
		s.approve(a.ID)

		s.Require().NoError(s.service.Delete(s.ctx, a.ID))
		s.Equal(1, s.cvs.deltas[s.cvID])
	})

	s.Run("rejects once the cv left draft", func() {
		a := s.create(id.OfferingID(uuid.New()))
		s.cvs.cvs[s.cvID].ServicesEditable = false

		err := s.service.Delete(s.ctx, a.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *AssignmentServiceSuite) TestList() {
	first := s.create(id.OfferingID(uuid.New()))
	s.create(id.OfferingID(uuid.New()))
	s.approve(first.ID)

	all, err := s.service.List(s.ctx, models.ListFilter{CVID: &s.cvID})
	s.Require().NoError(err)
	s.Len(all, 2)

	approved := models.ReviewApproved
	filtered, err := s.service.List(s.ctx, models.ListFilter{CVID: &s.cvID, ReviewStatus: &approved})
	s.Require().NoError(err)
	s.Require().Len(filtered, 1)
	s.Equal(first.ID, filtered[0].ID)
}

func (s *AssignmentServiceSuite) TestTrainingFlow() {
	s.Run("runs required through invited, in_progress and passed", func() {
		a := s.create(id.OfferingID(uuid.New()))
		s.approve(a.ID)
		s.Require().NoError(s.setTrainingStatus(a.ID, models.TrainingRequired))

		invited, err := s.service.InviteTraining(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Equal(models.TrainingInvited, invited.TrainingStatus)
		s.NotNil(invited.TrainingInvitedAt)

		started, err := s.service.StartTraining(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Equal(models.TrainingInProgress, started.TrainingStatus)

		passed, err := s.service.CompleteTraining(s.ctx, a.ID, true)
		s.Require().NoError(err)
		s.Equal(models.TrainingPassed, passed.TrainingStatus)
		s.True(passed.IsQualified())
	})

	s.Run("a pass records the qualification and back-links it", func() {
		s.registry.passes = nil
		offeringID := id.OfferingID(uuid.New())
		a := s.create(offeringID)
		s.approve(a.ID)
		s.Require().NoError(s.setTrainingStatus(a.ID, models.TrainingInProgress))

		passed, err := s.service.CompleteTraining(s.ctx, a.ID, true)
		s.Require().NoError(err)
		s.Equal([]id.OfferingID{offeringID}, s.registry.passes)
		s.Require().NotNil(passed.QualificationID)
		s.Equal(s.registry.result.ID, *passed.QualificationID)
		s.Require().NotNil(passed.QualifiedAt)
		s.Equal(s.registry.result.PassedAt, *passed.QualifiedAt)
	})

	s.Run("a failure can be retried", func() {
		s.registry.passes = nil
		a := s.create(id.OfferingID(uuid.New()))
		s.approve(a.ID)
		s.Require().NoError(s.setTrainingStatus(a.ID, models.TrainingInProgress))

		failed, err := s.service.CompleteTraining(s.ctx, a.ID, false)
		s.Require().NoError(err)
		s.Equal(models.TrainingFailed, failed.TrainingStatus)
		s.Empty(s.registry.passes)

		retried, err := s.service.StartTraining(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Equal(models.TrainingInProgress, retried.TrainingStatus)
	})

	s.Run("training requires an approved assignment", func() {
		a := s.create(id.OfferingID(uuid.New()))

		_, err := s.service.InviteTraining(s.ctx, a.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("not_required never enters the machine", func() {
		a := s.create(id.OfferingID(uuid.New()))
		s.approve(a.ID)
		s.Require().NoError(s.setTrainingStatus(a.ID, models.TrainingNotRequired))

		_, err := s.service.InviteTraining(s.ctx, a.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *AssignmentServiceSuite) setTrainingStatus(assignmentID id.AssignmentID, status models.TrainingStatus) error {
	_, err := s.store.Execute(context.Background(), assignmentID,
		func(*models.Assignment) error { return nil },
		func(a *models.Assignment) { a.TrainingStatus = status },
	)
	return err
}

func (s *AssignmentServiceSuite) TestCheckoffs() {
	offeringID := id.OfferingID(uuid.New())
	requirementID := id.RequirementID(uuid.New())
	s.catalog.requirements[requirementID] = RequirementInfo{ID: requirementID, OfferingID: offeringID, Title: "Verify references"}

	s.Run("records and clears a check-off", func() {
		a := s.create(offeringID)

		checked, err := s.service.SetCheckoff(s.ctx, a.ID, requirementID, true, "verified by phone")
		s.Require().NoError(err)
		checkoff, ok := checked.CheckoffFor(requirementID)
		s.Require().True(ok)
		s.Equal("admin@example.com", checkoff.CheckedBy)
		s.Equal("verified by phone", checkoff.Note)

		cleared, err := s.service.SetCheckoff(s.ctx, a.ID, requirementID, false, "")
		s.Require().NoError(err)
		_, ok = cleared.CheckoffFor(requirementID)
		s.False(ok)
	})

	s.Run("rejects a retired requirement", func() {
		retiredID := id.RequirementID(uuid.New())
		s.catalog.requirements[retiredID] = RequirementInfo{ID: retiredID, OfferingID: offeringID, Title: "Old form", Retired: true}
		a := s.create(offeringID)

		_, err := s.service.SetCheckoff(s.ctx, a.ID, retiredID, true, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("rejects a requirement from another offering", func() {
		foreignID := id.RequirementID(uuid.New())
		s.catalog.requirements[foreignID] = RequirementInfo{ID: foreignID, OfferingID: id.OfferingID(uuid.New()), Title: "Unrelated form"}
		a := s.create(offeringID)

		_, err := s.service.SetCheckoff(s.ctx, a.ID, foreignID, true, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("freezes check-offs on a locked cv", func() {
		a := s.create(offeringID)
		s.cvs.cvs[s.cvID].Final = true
		defer func() { s.cvs.cvs[s.cvID].Final = false }()

		_, err := s.service.SetCheckoff(s.ctx, a.ID, requirementID, true, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("bulk check-off rejects the batch on one retired requirement", func() {
		retiredID := id.RequirementID(uuid.New())
		s.catalog.requirements[retiredID] = RequirementInfo{ID: retiredID, OfferingID: offeringID, Retired: true}
		a := s.create(offeringID)

		_, err := s.service.BulkCheckoff(s.ctx, a.ID, []id.RequirementID{requirementID, retiredID})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

		after, err := s.service.Get(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Empty(after.Checkoffs)
	})
}

func (s *AssignmentServiceSuite) TestRequirements() {
	offeringID := id.OfferingID(uuid.New())
	requirementID := id.RequirementID(uuid.New())
	info := RequirementInfo{ID: requirementID, OfferingID: offeringID, Title: "Verify references"}
	s.catalog.requirements[requirementID] = info
	s.catalog.active = []RequirementInfo{info}

	s.Run("merges the checklist with recorded check-offs", func() {
		a := s.create(offeringID)
		_, err := s.service.SetCheckoff(s.ctx, a.ID, requirementID, true, "")
		s.Require().NoError(err)

		rows, err := s.service.Requirements(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		s.True(rows[0].Checked)
		s.Equal("admin@example.com", rows[0].CheckedBy)
	})

	s.Run("a shell without an offering has no checklist", func() {
		shell, err := s.service.Create(s.ctx, CreateParams{CVID: s.cvID, AssignedBy: "admin@example.com"})
		s.Require().NoError(err)

		_, err = s.service.Requirements(s.ctx, shell.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *AssignmentServiceSuite) TestCounts() {
	first := s.create(id.OfferingID(uuid.New()))
	s.create(id.OfferingID(uuid.New()))
	s.create(id.OfferingID(uuid.New()))
	s.approve(first.ID)

	counts, err := s.service.Counts(s.ctx, s.cvID)
	s.Require().NoError(err)
	s.Equal(DecisionCounts{Total: 3, Approved: 1, Pending: 2}, counts)
}
