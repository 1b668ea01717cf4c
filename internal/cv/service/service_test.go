package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"experthub/internal/cv/models"
	cvstore "experthub/internal/cv/store/cv"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/requestcontext"
)

type CVServiceSuite struct {
	suite.Suite
	svc    *Service
	store  *cvstore.InMemory
	ctx    context.Context
	userID id.UserID
	orgID  id.OrgID
}

func (s *CVServiceSuite) SetupTest() {
	s.store = cvstore.NewInMemory()
	s.svc = New(s.store)
	s.ctx = requestcontext.WithActor(context.Background(), "expert-1")
	s.userID = id.UserID(uuid.New())
	s.orgID = id.OrgID(uuid.New())
}

func TestCVServiceSuite(t *testing.T) {
	suite.Run(t, new(CVServiceSuite))
}

func validContent() models.Content {
	return models.Content{
		Experience: []models.ExperienceEntry{{
			Title:     "Lead Assessor",
			Company:   "Verity Labs",
			StartDate: "2019-03-01",
			Current:   true,
		}},
		Education: []models.EducationEntry{{
			School:    "TU Delft",
			Degree:    "MSc",
			Field:     "Food Safety",
			StartDate: "2012-09-01",
			EndDate:   "2014-07-01",
		}},
	}
}

func (s *CVServiceSuite) create(content models.Content) *models.CV {
	cv, err := s.svc.Create(s.ctx, CreateParams{
		UserID:    s.userID,
		OrgID:     s.orgID,
		Content:   content,
		CreatedBy: "expert-1",
	})
	s.Require().NoError(err)
	return cv
}

// driveToReview walks a fresh CV through submit, payment and review start.
func (s *CVServiceSuite) driveToReview(cv *models.CV) *models.CV {
	_, err := s.svc.Submit(s.ctx, cv.ID)
	s.Require().NoError(err)
	_, err = s.svc.InitiatePayment(s.ctx, cv.ID, "INV-100", 25000)
	s.Require().NoError(err)
	_, err = s.svc.ConfirmPayment(s.ctx, cv.ID)
	s.Require().NoError(err)
	reviewed, err := s.svc.StartReview(s.ctx, cv.ID)
	s.Require().NoError(err)
	return reviewed
}

func (s *CVServiceSuite) TestCreate() {
	s.Run("first version starts at 1 in draft", func() {
		cv := s.create(validContent())
		s.Equal(1, cv.Version)
		s.Equal(models.StatusDraft, cv.Status)
		s.Zero(cv.PendingAssignmentCount)
	})

	s.Run("versions increase per user and organization pair", func() {
		first := s.create(validContent())
		second := s.create(validContent())
		s.Equal(first.Version+1, second.Version)

		otherOrg := id.OrgID(uuid.New())
		cv, err := s.svc.Create(s.ctx, CreateParams{
			UserID: s.userID, OrgID: otherOrg,
			Content: validContent(), CreatedBy: "expert-1",
		})
		s.Require().NoError(err)
		s.Equal(1, cv.Version)
	})

	s.Run("missing creator is a validation failure", func() {
		_, err := s.svc.Create(s.ctx, CreateParams{
			UserID: s.userID, OrgID: s.orgID, Content: validContent(),
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *CVServiceSuite) TestCreateAutoCopy() {
	s.Run("copies content forward when the latest version is locked", func() {
		cv := s.create(validContent())
		s.driveToReview(cv)

		next, err := s.svc.Create(s.ctx, CreateParams{
			UserID: s.userID, OrgID: s.orgID,
			Content:   models.Content{Notes: "should be ignored"},
			CreatedBy: "expert-1",
		})
		s.Require().NoError(err)
		s.Equal(2, next.Version)
		s.Require().Len(next.Content.Experience, 1)
		s.Equal("Lead Assessor", next.Content.Experience[0].Title)
		s.Empty(next.Content.Notes)
	})

	s.Run("uses caller content when the latest version is not locked", func() {
		s.create(validContent())

		next, err := s.svc.Create(s.ctx, CreateParams{
			UserID: s.userID, OrgID: s.orgID,
			Content:   models.Content{Notes: "fresh start"},
			CreatedBy: "expert-1",
		})
		s.Require().NoError(err)
		s.Equal("fresh start", next.Content.Notes)
		s.Empty(next.Content.Experience)
	})
}

func (s *CVServiceSuite) TestSubmit() {
	s.Run("valid draft becomes completed", func() {
		cv := s.create(validContent())
		submitted, err := s.svc.Submit(s.ctx, cv.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, submitted.Status)
		s.NotNil(submitted.SubmittedAt)
	})

	s.Run("draft without education fails validation", func() {
		content := validContent()
		content.Education = nil
		cv := s.create(content)

		_, err := s.svc.Submit(s.ctx, cv.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(dErrors.MessageOf(err), "education")
	})

	s.Run("non-current experience without end date fails validation", func() {
		content := validContent()
		content.Experience[0].Current = false
		content.Experience[0].EndDate = ""
		cv := s.create(content)

		_, err := s.svc.Submit(s.ctx, cv.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("field counts over 12 months cannot exceed total", func() {
		content := validContent()
		content.Experience[0].FieldExperienceCounts = &models.FieldExperienceCounts{
			Assessment: &models.FieldExperienceCount{Total: 3, Last12M: 5},
		}
		cv := s.create(content)

		_, err := s.svc.Submit(s.ctx, cv.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(dErrors.MessageOf(err), "cannot exceed total")
	})

	s.Run("submitting a completed cv is an invalid transition", func() {
		cv := s.create(validContent())
		_, err := s.svc.Submit(s.ctx, cv.ID)
		s.Require().NoError(err)

		_, err = s.svc.Submit(s.ctx, cv.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("unknown cv is not found", func() {
		_, err := s.svc.Submit(s.ctx, id.CVID(uuid.New()))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *CVServiceSuite) TestUpdateContent() {
	s.Run("completed cv drops back to draft when content becomes invalid", func() {
		cv := s.create(validContent())
		_, err := s.svc.Submit(s.ctx, cv.ID)
		s.Require().NoError(err)

		broken := validContent()
		broken.Experience[0].Title = ""
		updated, err := s.svc.UpdateContent(s.ctx, cv.ID, broken)
		s.Require().NoError(err)
		s.Equal(models.StatusDraft, updated.Status)
		s.Nil(updated.SubmittedAt)
	})

	s.Run("completed cv stays completed on a valid edit", func() {
		cv := s.create(validContent())
		_, err := s.svc.Submit(s.ctx, cv.ID)
		s.Require().NoError(err)

		content := validContent()
		content.Notes = "minor touch-up"
		updated, err := s.svc.UpdateContent(s.ctx, cv.ID, content)
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, updated.Status)
	})

	s.Run("cv under review rejects content edits", func() {
		cv := s.create(validContent())
		s.driveToReview(cv)

		_, err := s.svc.UpdateContent(s.ctx, cv.ID, validContent())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *CVServiceSuite) TestPaymentFlow() {
	s.Run("initiate and confirm record reference and timestamp", func() {
		cv := s.create(validContent())
		_, err := s.svc.Submit(s.ctx, cv.ID)
		s.Require().NoError(err)

		pending, err := s.svc.InitiatePayment(s.ctx, cv.ID, "INV-7", 25000)
		s.Require().NoError(err)
		s.Equal(models.StatusPaymentPending, pending.Status)
		s.Equal("INV-7", pending.PaymentReference)

		paid, err := s.svc.ConfirmPayment(s.ctx, cv.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPaid, paid.Status)
		s.NotNil(paid.PaidAt)
	})

	s.Run("payment cannot start on a draft", func() {
		cv := s.create(validContent())
		_, err := s.svc.InitiatePayment(s.ctx, cv.ID, "INV-8", 25000)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("confirming twice is an invalid transition", func() {
		cv := s.create(validContent())
		_, err := s.svc.Submit(s.ctx, cv.ID)
		s.Require().NoError(err)
		_, err = s.svc.InitiatePayment(s.ctx, cv.ID, "INV-9", 25000)
		s.Require().NoError(err)
		_, err = s.svc.ConfirmPayment(s.ctx, cv.ID)
		s.Require().NoError(err)

		_, err = s.svc.ConfirmPayment(s.ctx, cv.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *CVServiceSuite) TestReviewLoop() {
	s.Run("unlock and resubmit may repeat", func() {
		cv := s.create(validContent())
		reviewed := s.driveToReview(cv)
		s.Equal(models.StatusLockedForReview, reviewed.Status)

		unlocked, err := s.svc.Unlock(s.ctx, cv.ID, "admin-1", "missing certificates")
		s.Require().NoError(err)
		s.Equal(models.StatusUnlockedForEdits, unlocked.Status)
		s.Equal("missing certificates", unlocked.UnlockReason)

		_, err = s.svc.UpdateContent(s.ctx, cv.ID, validContent())
		s.Require().NoError(err)

		resubmitted, err := s.svc.Resubmit(s.ctx, cv.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusLockedForReview, resubmitted.Status)

		_, err = s.svc.Unlock(s.ctx, cv.ID, "admin-1", "one more pass")
		s.Require().NoError(err)
	})

	s.Run("review can start straight from completed", func() {
		cv := s.create(validContent())
		_, err := s.svc.Submit(s.ctx, cv.ID)
		s.Require().NoError(err)

		reviewed, err := s.svc.StartReview(s.ctx, cv.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusLockedForReview, reviewed.Status)
	})

	s.Run("unlocking a draft is an invalid transition", func() {
		cv := s.create(validContent())
		_, err := s.svc.Unlock(s.ctx, cv.ID, "admin-1", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *CVServiceSuite) TestItemReviewLocks() {
	s.Run("toggles an entry lock while under review", func() {
		cv := s.create(validContent())
		s.driveToReview(cv)

		updated, err := s.svc.SetItemReviewLock(s.ctx, cv.ID, "experience", 0, true)
		s.Require().NoError(err)
		s.True(updated.Content.Experience[0].LockedForReview)

		updated, err = s.svc.SetItemReviewLock(s.ctx, cv.ID, "experience", 0, false)
		s.Require().NoError(err)
		s.False(updated.Content.Experience[0].LockedForReview)
	})

	s.Run("locked entry survives the unlock and edit loop", func() {
		cv := s.create(validContent())
		s.driveToReview(cv)

		_, err := s.svc.SetItemReviewLock(s.ctx, cv.ID, "experience", 0, true)
		s.Require().NoError(err)

		_, err = s.svc.Unlock(s.ctx, cv.ID, "admin-1", "fix education dates")
		s.Require().NoError(err)

		edited := validContent()
		edited.Experience[0].Title = "Junior Assessor"
		edited.Experience[0].Company = "Another Org"
		edited.Education[0].Degree = "BSc"
		updated, err := s.svc.UpdateContent(s.ctx, cv.ID, edited)
		s.Require().NoError(err)

		s.Equal("Lead Assessor", updated.Content.Experience[0].Title)
		s.Equal("Verity Labs", updated.Content.Experience[0].Company)
		s.True(updated.Content.Experience[0].LockedForReview)
		s.Equal("BSc", updated.Content.Education[0].Degree)
	})

	s.Run("locked entry reappears when the update drops it", func() {
		cv := s.create(validContent())
		s.driveToReview(cv)

		_, err := s.svc.SetItemReviewLock(s.ctx, cv.ID, "education", 0, true)
		s.Require().NoError(err)
		_, err = s.svc.Unlock(s.ctx, cv.ID, "admin-1", "trim sections")
		s.Require().NoError(err)

		edited := validContent()
		edited.Education = nil
		updated, err := s.svc.UpdateContent(s.ctx, cv.ID, edited)
		s.Require().NoError(err)

		s.Require().Len(updated.Content.Education, 1)
		s.Equal("TU Delft", updated.Content.Education[0].School)
		s.True(updated.Content.Education[0].LockedForReview)
	})

	s.Run("payload cannot smuggle lock flags", func() {
		cv := s.create(validContent())

		spoofed := validContent()
		spoofed.Education[0].LockedForReview = true
		updated, err := s.svc.UpdateContent(s.ctx, cv.ID, spoofed)
		s.Require().NoError(err)
		s.False(updated.Content.Education[0].LockedForReview)
	})

	s.Run("rejected outside review", func() {
		cv := s.create(validContent())
		_, err := s.svc.SetItemReviewLock(s.ctx, cv.ID, "experience", 0, true)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("rejects an out of range index", func() {
		cv := s.create(validContent())
		s.driveToReview(cv)

		_, err := s.svc.SetItemReviewLock(s.ctx, cv.ID, "education", 5, true)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

type stubAssignmentReader struct {
	counts map[id.CVID]models.AssignmentCounts
}

func (r *stubAssignmentReader) SummariesByCV(_ context.Context, cvID id.CVID) ([]AssignmentSummary, error) {
	counts := r.counts[cvID]
	summaries := make([]AssignmentSummary, 0, counts.Total)
	for i := 0; i < counts.Total; i++ {
		summaries = append(summaries, AssignmentSummary{ID: id.AssignmentID(uuid.New()), Role: "regular"})
	}
	return summaries, nil
}

func (r *stubAssignmentReader) CountsByCV(_ context.Context, cvID id.CVID) (models.AssignmentCounts, error) {
	return r.counts[cvID], nil
}

func (s *CVServiceSuite) TestHistory() {
	reader := &stubAssignmentReader{counts: map[id.CVID]models.AssignmentCounts{}}
	s.svc = New(s.store, WithAssignmentReader(reader))

	first := s.create(validContent())
	second := s.create(validContent())
	reader.counts[first.ID] = models.AssignmentCounts{Total: 2, Approved: 1, Rejected: 1}
	reader.counts[second.ID] = models.AssignmentCounts{Total: 1, Pending: 1}

	entries, err := s.svc.History(s.ctx, s.userID, s.orgID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)

	s.Equal(second.ID, entries[0].CV.ID)
	s.Equal(1, entries[0].Assignments.Pending)
	s.Equal(first.ID, entries[1].CV.ID)
	s.Equal(1, entries[1].Assignments.Approved)
}

func (s *CVServiceSuite) TestRequestClockPinsTimestamps() {
	at := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(s.ctx, at)

	cv, err := s.svc.Create(ctx, CreateParams{
		UserID: s.userID, OrgID: s.orgID,
		Content: validContent(), CreatedBy: "expert-1",
	})
	s.Require().NoError(err)
	s.Equal(at, cv.CreatedAt)

	submitted, err := s.svc.Submit(ctx, cv.ID)
	s.Require().NoError(err)
	s.Require().NotNil(submitted.SubmittedAt)
	s.Equal(at, *submitted.SubmittedAt)
}
