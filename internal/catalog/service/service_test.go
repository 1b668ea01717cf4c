package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"experthub/internal/catalog/models"
	"experthub/internal/catalog/store/offering"
	"experthub/internal/catalog/store/parent"
	"experthub/internal/catalog/store/requirement"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/requestcontext"
)

type CatalogServiceSuite struct {
	suite.Suite
	svc      *Service
	ctx      context.Context
	offering *models.ServiceOffering
}

func (s *CatalogServiceSuite) SetupTest() {
	s.svc = New(parent.NewInMemory(), offering.NewInMemory(), requirement.NewInMemory())
	s.ctx = context.Background()

	p, err := s.svc.CreateParent(s.ctx, "Assessment", "supplier assessments")
	s.Require().NoError(err)
	o, err := s.svc.CreateOffering(s.ctx, p.ID, "V2", "Assessment V2", "second generation")
	s.Require().NoError(err)
	s.offering = o
}

func TestCatalogServiceSuite(t *testing.T) {
	suite.Run(t, new(CatalogServiceSuite))
}

func (s *CatalogServiceSuite) createRequirement(title string, applicability models.Applicability, order *int) *models.Requirement {
	req, err := s.svc.CreateRequirement(s.ctx, CreateRequirementParams{
		OfferingID:    s.offering.ID,
		Title:         title,
		Applicability: applicability,
		Order:         order,
		CreatedBy:     "admin-1",
	})
	s.Require().NoError(err)
	return req
}

func intPtr(v int) *int { return &v }

func (s *CatalogServiceSuite) TestRetireRequirement() {
	s.Run("retires a live requirement once", func() {
		req := s.createRequirement("Site visit completed", models.ApplicabilityBoth, nil)

		retired, err := s.svc.RetireRequirement(s.ctx, req.ID, "admin-1", "")
		s.Require().NoError(err)
		s.True(retired.IsRetired())
		s.Equal("No longer needed", retired.RetirementReason)
	})

	s.Run("second retirement fails as invalid transition", func() {
		req := s.createRequirement("Retire me twice", models.ApplicabilityBoth, nil)

		_, err := s.svc.RetireRequirement(s.ctx, req.ID, "admin-1", "")
		s.Require().NoError(err)

		_, err = s.svc.RetireRequirement(s.ctx, req.ID, "admin-1", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *CatalogServiceSuite) TestReplaceRequirement() {
	s.Run("replacement retires and cross-links both records", func() {
		old := s.createRequirement("Old wording", models.ApplicabilityBoth, nil)

		replacement, err := s.svc.CreateRequirement(s.ctx, CreateRequirementParams{
			OfferingID: s.offering.ID,
			Title:      "New wording",
			CreatedBy:  "admin-1",
			Replaces:   &old.ID,
		})
		s.Require().NoError(err)
		s.Require().NotNil(replacement.Replaces)
		s.Equal(old.ID, *replacement.Replaces)

		retired, err := s.svc.GetRequirement(s.ctx, old.ID)
		s.Require().NoError(err)
		s.True(retired.IsRetired())
		s.Require().NotNil(retired.ReplacedBy)
		s.Equal(replacement.ID, *retired.ReplacedBy)
		s.Contains(retired.RetirementReason, "New wording")
	})

	s.Run("replacing an already retired requirement fails", func() {
		old := s.createRequirement("Once replaceable", models.ApplicabilityBoth, nil)
		_, err := s.svc.RetireRequirement(s.ctx, old.ID, "admin-1", "obsolete")
		s.Require().NoError(err)

		_, err = s.svc.CreateRequirement(s.ctx, CreateRequirementParams{
			OfferingID: s.offering.ID,
			Title:      "Too late",
			CreatedBy:  "admin-1",
			Replaces:   &old.ID,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("history exposes the replacement chain", func() {
		old := s.createRequirement("Chain start", models.ApplicabilityBoth, nil)
		replacement, err := s.svc.CreateRequirement(s.ctx, CreateRequirementParams{
			OfferingID: s.offering.ID,
			Title:      "Chain end",
			CreatedBy:  "admin-1",
			Replaces:   &old.ID,
		})
		s.Require().NoError(err)

		history, err := s.svc.RequirementHistory(s.ctx, old.ID)
		s.Require().NoError(err)
		s.Require().NotNil(history.ReplacedBy)
		s.Equal(replacement.ID, history.ReplacedBy.ID)

		history, err = s.svc.RequirementHistory(s.ctx, replacement.ID)
		s.Require().NoError(err)
		s.Require().NotNil(history.Replaced)
		s.Equal(old.ID, history.Replaced.ID)
	})
}

func (s *CatalogServiceSuite) TestListActiveRequirements() {
	s.Run("filters by role applicability", func() {
		s.createRequirement("Lead only", models.ApplicabilityLead, nil)
		s.createRequirement("Regular only", models.ApplicabilityRegular, nil)
		s.createRequirement("Everyone", models.ApplicabilityBoth, nil)

		leadReqs, err := s.svc.ListActiveRequirements(s.ctx, s.offering.ID, models.RoleLead)
		s.Require().NoError(err)
		s.Len(leadReqs, 2)
		for _, req := range leadReqs {
			s.NotEqual("Regular only", req.Title)
		}

		regularReqs, err := s.svc.ListActiveRequirements(s.ctx, s.offering.ID, models.RoleRegular)
		s.Require().NoError(err)
		s.Len(regularReqs, 2)
	})

	s.Run("excludes retired requirements", func() {
		req := s.createRequirement("Soon gone", models.ApplicabilityBoth, nil)
		_, err := s.svc.RetireRequirement(s.ctx, req.ID, "admin-1", "")
		s.Require().NoError(err)

		reqs, err := s.svc.ListActiveRequirements(s.ctx, s.offering.ID, models.RoleLead)
		s.Require().NoError(err)
		for _, r := range reqs {
			s.NotEqual(req.ID, r.ID)
		}
	})
}

func (s *CatalogServiceSuite) TestRequirementOrdering() {
	// Pin distinct creation times so tie-breaks are observable.
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	ctxAt := func(offset time.Duration) context.Context {
		return requestcontext.WithTime(s.ctx, base.Add(offset))
	}
	create := func(ctx context.Context, title string, order *int) *models.Requirement {
		req, err := s.svc.CreateRequirement(ctx, CreateRequirementParams{
			OfferingID: s.offering.ID,
			Title:      title,
			Order:      order,
			CreatedBy:  "admin-1",
		})
		s.Require().NoError(err)
		return req
	}

	unorderedLate := create(ctxAt(3*time.Minute), "unordered late", nil)
	orderedSecond := create(ctxAt(2*time.Minute), "ordered second", intPtr(20))
	unorderedEarly := create(ctxAt(1*time.Minute), "unordered early", nil)
	orderedFirst := create(ctxAt(4*time.Minute), "ordered first", intPtr(10))

	reqs, err := s.svc.ListActiveRequirements(s.ctx, s.offering.ID, models.RoleRegular)
	s.Require().NoError(err)
	s.Require().Len(reqs, 4)

	s.Equal(orderedFirst.ID, reqs[0].ID)
	s.Equal(orderedSecond.ID, reqs[1].ID)
	s.Equal(unorderedEarly.ID, reqs[2].ID)
	s.Equal(unorderedLate.ID, reqs[3].ID)
}

func (s *CatalogServiceSuite) TestUpdateRequirementOrder() {
	first := s.createRequirement("was first", models.ApplicabilityBoth, intPtr(10))
	second := s.createRequirement("was second", models.ApplicabilityBoth, intPtr(20))

	err := s.svc.UpdateRequirementOrder(s.ctx, []RequirementOrder{
		{RequirementID: first.ID, Order: 30},
		{RequirementID: second.ID, Order: 5},
	})
	s.Require().NoError(err)

	reqs, err := s.svc.ListActiveRequirements(s.ctx, s.offering.ID, models.RoleRegular)
	s.Require().NoError(err)
	s.Require().Len(reqs, 2)
	s.Equal(second.ID, reqs[0].ID)
	s.Equal(first.ID, reqs[1].ID)
}

func (s *CatalogServiceSuite) TestOfferings() {
	s.Run("deprecate flips active once", func() {
		updated, err := s.svc.DeprecateOffering(s.ctx, s.offering.ID)
		s.Require().NoError(err)
		s.False(updated.Active)
		s.NotNil(updated.DeprecatedAt)

		_, err = s.svc.DeprecateOffering(s.ctx, s.offering.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown offering is not found", func() {
		unknown := id.OfferingID{}
		copy(unknown[:], []byte("0123456789abcdef"))

		_, err := s.svc.GetOffering(s.ctx, unknown)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
