package lifecycle

import (
	"context"
	"time"

	amodels "experthub/internal/assignment/models"
	assignmentservice "experthub/internal/assignment/service"
	cmodels "experthub/internal/catalog/models"
	catalogservice "experthub/internal/catalog/service"
	cvmodels "experthub/internal/cv/models"
	cvservice "experthub/internal/cv/service"
	lifecyclepkg "experthub/internal/lifecycle"
	qualservice "experthub/internal/qualification/service"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/requestcontext"
)

// The adapters below mirror the cross-module glue in cmd/server so the flow
// tests exercise the same wiring the server runs with.

type cvGateway struct {
	cvs cvservice.Store
}

func newCVGateway(cvs cvservice.Store) *cvGateway {
	return &cvGateway{cvs: cvs}
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

type assignmentReader struct {
	assignments assignmentservice.Store
	catalog     *catalogservice.Service
}

func newAssignmentReader(assignments assignmentservice.Store, catalog *catalogservice.Service) *assignmentReader {
	return &assignmentReader{assignments: assignments, catalog: catalog}
}

func (r *assignmentReader) SummariesByCV(ctx context.Context, cvID id.CVID) ([]cvservice.AssignmentSummary, error) {
	list, err := r.assignments.List(ctx, amodels.ListFilter{CVID: &cvID})
	if err != nil {
		return nil, err
	}
	summaries := make([]cvservice.AssignmentSummary, 0, len(list))
	for _, a := range list {
		summary := cvservice.AssignmentSummary{
			ID:             a.ID,
			Role:           string(a.Role),
			ReviewStatus:   string(a.ReviewStatus),
			TrainingStatus: string(a.TrainingStatus),
		}
		if a.Offering.IsAssigned() {
			summary.OfferingID = a.Offering.ID()
			if offering, err := r.catalog.GetOffering(ctx, a.Offering.ID()); err == nil {
				summary.OfferingName = offering.Name
			}
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

type requirementCatalog struct {
	catalog *catalogservice.Service
}

func newRequirementCatalog(catalog *catalogservice.Service) *requirementCatalog {
	return &requirementCatalog{catalog: catalog}
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

type trainingRegistry struct {
	qualifications *qualservice.Service
}

func newTrainingRegistry(qualifications *qualservice.Service) *trainingRegistry {
	return &trainingRegistry{qualifications: qualifications}
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

type lifecycleRegistry struct {
	qualifications *qualservice.Service
}

func newLifecycleRegistry(qualifications *qualservice.Service) *lifecycleRegistry {
	return &lifecycleRegistry{qualifications: qualifications}
}

func (r *lifecycleRegistry) Find(ctx context.Context, userID id.UserID, offeringID id.OfferingID) (*lifecyclepkg.QualificationRecord, error) {
	q, err := r.qualifications.Lookup(ctx, userID, offeringID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lifecyclepkg.QualificationRecord{ID: q.ID, PassedAt: q.TrainingPassedAt}, nil
}
