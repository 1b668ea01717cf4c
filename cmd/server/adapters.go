package main

import (
	"context"
	"time"

	amodels "experthub/internal/assignment/models"
	assignmentservice "experthub/internal/assignment/service"
	billingservice "experthub/internal/billing/service"
	cmodels "experthub/internal/catalog/models"
	catalogservice "experthub/internal/catalog/service"
	cvmodels "experthub/internal/cv/models"
	cvservice "experthub/internal/cv/service"
	jwttoken "experthub/internal/jwt_token"
	"experthub/internal/lifecycle"
	"experthub/internal/platform/middleware"
	qualservice "experthub/internal/qualification/service"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/requestcontext"
)

// jwtValidator narrows the token service to the claim shape the auth
// middleware consumes.
type jwtValidator struct {
	tokens *jwttoken.JWTService
}

func (v *jwtValidator) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := v.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{
		ActorID: claims.ActorID,
		OrgID:   claims.OrgID,
		Role:    claims.Role,
	}, nil
}

// cvGateway exposes the slice of CV state the assignment module depends on.
// AdjustPendingCount goes through the CV store's Execute so it joins any
// transaction already on the context.
type cvGateway struct {
	cvs cvservice.Store
}

func (g *cvGateway) Find(ctx context.Context, cvID id.CVID) (*assignmentservice.CVInfo, error) {
	cv, err := g.cvs.FindByID(ctx, cvID)
	if err != nil {
		return nil, err
	}
	return &assignmentservice.CVInfo{
		ID:               cv.ID,
		UserID:           cv.UserID,
		OrgID:            cv.OrgID,
		Status:           string(cv.Status),
		ServicesEditable: cv.Status.CanEditServices(),
		Final:            cv.Status == cvmodels.StatusLockedFinal,
	}, nil
}

func (g *cvGateway) AdjustPendingCount(ctx context.Context, cvID id.CVID, delta int) error {
	_, err := g.cvs.Execute(ctx, cvID,
		func(*cvmodels.CV) error { return nil },
		func(cv *cvmodels.CV) {
			cv.PendingAssignmentCount += delta
			if cv.PendingAssignmentCount < 0 {
				cv.PendingAssignmentCount = 0
			}
			cv.UpdatedAt = requestcontext.Now(ctx)
		})
	return err
}

// assignmentReader backs the CV read paths with assignment summaries and
// decision counts. Offering names come from the catalog; a missing offering
// leaves the name blank rather than failing the whole view.
type assignmentReader struct {
	assignments assignmentservice.Store
	catalog     *catalogservice.Service
}

func (r *assignmentReader) SummariesByCV(ctx context.Context, cvID id.CVID) ([]cvservice.AssignmentSummary, error) {
	list, err := r.assignments.List(ctx, amodels.ListFilter{CVID: &cvID})
	if err != nil {
		return nil, err
	}
	names := make(map[id.OfferingID]string)
	summaries := make([]cvservice.AssignmentSummary, 0, len(list))
	for _, a := range list {
		summary := cvservice.AssignmentSummary{
			ID:             a.ID,
			Role:           string(a.Role),
			ReviewStatus:   string(a.ReviewStatus),
			TrainingStatus: string(a.TrainingStatus),
		}
		if a.Offering.IsAssigned() {
			offeringID := a.Offering.ID()
			summary.OfferingID = offeringID
			name, ok := names[offeringID]
			if !ok {
				if offering, err := r.catalog.GetOffering(ctx, offeringID); err == nil {
					name = offering.Name
				}
				names[offeringID] = name
			}
			summary.OfferingName = name
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (r *assignmentReader) CountsByCV(ctx context.Context, cvID id.CVID) (cvmodels.AssignmentCounts, error) {
	list, err := r.assignments.List(ctx, amodels.ListFilter{CVID: &cvID})
	if err != nil {
		return cvmodels.AssignmentCounts{}, err
	}
	counts := cvmodels.AssignmentCounts{Total: len(list)}
	for _, a := range list {
		switch a.ReviewStatus {
		case amodels.ReviewApproved:
			counts.Approved++
		case amodels.ReviewRejected:
			counts.Rejected++
		default:
			counts.Pending++
		}
	}
	return counts, nil
}

// requirementCatalog bridges check-off validation to the catalog module.
type requirementCatalog struct {
	catalog *catalogservice.Service
}

func (c *requirementCatalog) ActiveForRole(ctx context.Context, offeringID id.OfferingID, role amodels.Role) ([]assignmentservice.RequirementInfo, error) {
	reqs, err := c.catalog.ListActiveRequirements(ctx, offeringID, cmodels.Role(role))
	if err != nil {
		return nil, err
	}
	infos := make([]assignmentservice.RequirementInfo, 0, len(reqs))
	for _, req := range reqs {
		infos = append(infos, requirementInfo(req))
	}
	return infos, nil
}

func (c *requirementCatalog) Find(ctx context.Context, requirementID id.RequirementID) (*assignmentservice.RequirementInfo, error) {
	req, err := c.catalog.GetRequirement(ctx, requirementID)
	if err != nil {
		return nil, err
	}
	info := requirementInfo(req)
	return &info, nil
}

func requirementInfo(req *cmodels.Requirement) assignmentservice.RequirementInfo {
	return assignmentservice.RequirementInfo{
		ID:          req.ID,
		OfferingID:  req.OfferingID,
		Title:       req.Title,
		Description: req.Description,
		Order:       req.Order,
		Retired:     req.IsRetired(),
	}
}

// trainingRegistry records direct training passes in the global
// qualification registry.
type trainingRegistry struct {
	qualifications *qualservice.Service
}

func (t *trainingRegistry) RecordPass(ctx context.Context, userID id.UserID, offeringID id.OfferingID, assignmentID id.AssignmentID, orgID id.OrgID, passedAt time.Time) (*assignmentservice.QualificationInfo, error) {
	q, err := t.qualifications.RecordPass(ctx, qualservice.CreateParams{
		UserID:               userID,
		OfferingID:           offeringID,
		PassedAt:             passedAt,
		OriginalAssignmentID: &assignmentID,
		OriginalOrgID:        &orgID,
		CreatedBy:            requestcontext.Actor(ctx),
	})
	if err != nil {
		return nil, err
	}
	return &assignmentservice.QualificationInfo{ID: q.ID, PassedAt: q.TrainingPassedAt}, nil
}

// lifecycleRegistry answers the coordinator's lock-time qualification
// lookups. An unqualified pair is (nil, nil), not an error.
type lifecycleRegistry struct {
	qualifications *qualservice.Service
}

func (r *lifecycleRegistry) Find(ctx context.Context, userID id.UserID, offeringID id.OfferingID) (*lifecycle.QualificationRecord, error) {
	q, err := r.qualifications.Lookup(ctx, userID, offeringID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lifecycle.QualificationRecord{ID: q.ID, PassedAt: q.TrainingPassedAt}, nil
}

// leadRoster lets billing check for qualified lead experts on a service.
type leadRoster struct {
	assignments assignmentservice.Store
}

func (r *leadRoster) Leads(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID) ([]billingservice.LeadInfo, error) {
	list, err := r.assignments.List(ctx, amodels.ListFilter{OrgID: &orgID, OfferingID: &offeringID})
	if err != nil {
		return nil, err
	}
	leads := make([]billingservice.LeadInfo, 0, len(list))
	for _, a := range list {
		if a.Role != amodels.RoleLead {
			continue
		}
		leads = append(leads, billingservice.LeadInfo{
			AssignmentID: a.ID,
			UserID:       a.UserID,
			Qualified:    a.IsQualified(),
		})
	}
	return leads, nil
}
