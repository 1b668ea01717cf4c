// Package handler exposes service assignments over HTTP. Review decisions
// route through the lifecycle coordinator; everything else goes to the
// assignment service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"experthub/internal/assignment/models"
	"experthub/internal/assignment/service"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/platform/httputil"
	"experthub/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, params service.CreateParams) (*models.Assignment, error)
	BulkCreate(ctx context.Context, cvID id.CVID, offeringIDs []id.OfferingID, role models.Role, assignedBy string) ([]*models.Assignment, error)
	Delete(ctx context.Context, assignmentID id.AssignmentID) error
	Get(ctx context.Context, assignmentID id.AssignmentID) (*models.Assignment, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Assignment, error)
	InviteTraining(ctx context.Context, assignmentID id.AssignmentID) (*models.Assignment, error)
	StartTraining(ctx context.Context, assignmentID id.AssignmentID) (*models.Assignment, error)
	CompleteTraining(ctx context.Context, assignmentID id.AssignmentID, passed bool) (*models.Assignment, error)
	SetCheckoff(ctx context.Context, assignmentID id.AssignmentID, requirementID id.RequirementID, checked bool, note string) (*models.Assignment, error)
	BulkCheckoff(ctx context.Context, assignmentID id.AssignmentID, requirementIDs []id.RequirementID) (*models.Assignment, error)
	Requirements(ctx context.Context, assignmentID id.AssignmentID) ([]service.AssignmentRequirement, error)
	Counts(ctx context.Context, cvID id.CVID) (service.DecisionCounts, error)
}

// Decider applies review decisions with their CV-level consequences.
type Decider interface {
	Decide(ctx context.Context, assignmentID id.AssignmentID, decision models.Decision) (*models.Assignment, error)
}

type Handler struct {
	logger      *slog.Logger
	assignments Service
	decider     Decider
}

func New(assignments Service, decider Decider, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, assignments: assignments, decider: decider}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/assignments", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Post("/bulk", h.handleBulkCreate)
		r.Get("/", h.handleList)
		r.Get("/counts", h.handleCounts)

		r.Route("/{assignmentID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleDelete)
			r.Post("/decision", h.handleDecide)
			r.Post("/training/invite", h.handleInviteTraining)
			r.Post("/training/start", h.handleStartTraining)
			r.Post("/training/complete", h.handleCompleteTraining)
			r.Get("/requirements", h.handleRequirements)
			r.Put("/checkoffs", h.handleSetCheckoff)
			r.Post("/checkoffs/bulk", h.handleBulkCheckoff)
		})
	})
}

type createRequest struct {
	CVID       string `json:"cv_id"`
	OfferingID string `json:"offering_id,omitempty"`
	Role       string `json:"role,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	cvID, err := id.ParseCVID(req.CVID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	params := service.CreateParams{
		CVID:       cvID,
		Role:       role,
		AssignedBy: requestcontext.Actor(r.Context()),
	}
	if req.OfferingID != "" {
		offeringID, err := id.ParseOfferingID(req.OfferingID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		params.OfferingID = &offeringID
	}

	a, err := h.assignments.Create(r.Context(), params)
	if err != nil {
		h.writeFailure(r.Context(), w, "create assignment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

type bulkCreateRequest struct {
	CVID        string   `json:"cv_id"`
	OfferingIDs []string `json:"offering_ids"`
	Role        string   `json:"role,omitempty"`
}

func (h *Handler) handleBulkCreate(w http.ResponseWriter, r *http.Request) {
	var req bulkCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	cvID, err := id.ParseCVID(req.CVID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offeringIDs := make([]id.OfferingID, 0, len(req.OfferingIDs))
	for _, raw := range req.OfferingIDs {
		offeringID, err := id.ParseOfferingID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		offeringIDs = append(offeringIDs, offeringID)
	}

	created, err := h.assignments.BulkCreate(r.Context(), cvID, offeringIDs, role, requestcontext.Actor(r.Context()))
	if err != nil {
		h.writeFailure(r.Context(), w, "bulk create assignments", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	list, err := h.assignments.List(r.Context(), filter)
	if err != nil {
		h.writeFailure(r.Context(), w, "list assignments", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func filterFromQuery(r *http.Request) (models.ListFilter, error) {
	var filter models.ListFilter
	q := r.URL.Query()

	if raw := q.Get("cv_id"); raw != "" {
		cvID, err := id.ParseCVID(raw)
		if err != nil {
			return filter, err
		}
		filter.CVID = &cvID
	}
	if raw := q.Get("user_id"); raw != "" {
		userID, err := id.ParseUserID(raw)
		if err != nil {
			return filter, err
		}
		filter.UserID = &userID
	}
	if raw := q.Get("organization_id"); raw != "" {
		orgID, err := id.ParseOrgID(raw)
		if err != nil {
			return filter, err
		}
		filter.OrgID = &orgID
	}
	if raw := q.Get("offering_id"); raw != "" {
		offeringID, err := id.ParseOfferingID(raw)
		if err != nil {
			return filter, err
		}
		filter.OfferingID = &offeringID
	}
	if raw := q.Get("review_status"); raw != "" {
		status, err := models.ParseReviewStatus(raw)
		if err != nil {
			return filter, err
		}
		filter.ReviewStatus = &status
	}
	return filter, nil
}

func (h *Handler) handleCounts(w http.ResponseWriter, r *http.Request) {
	cvID, err := id.ParseCVID(r.URL.Query().Get("cv_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	counts, err := h.assignments.Counts(r.Context(), cvID)
	if err != nil {
		h.writeFailure(r.Context(), w, "count assignments", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, counts)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := h.assignments.Get(r.Context(), assignmentID)
	if err != nil {
		h.writeFailure(r.Context(), w, "get assignment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.assignments.Delete(r.Context(), assignmentID); err != nil {
		h.writeFailure(r.Context(), w, "delete assignment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusNoContent, nil)
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	reviewer := requestcontext.Actor(r.Context())
	var decision models.Decision
	switch req.Decision {
	case "approve":
		decision = models.Approve{ReviewedBy: reviewer, Notes: req.Notes}
	case "reject":
		if req.Reason == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "a rejection reason is required"))
			return
		}
		decision = models.Reject{ReviewedBy: reviewer, Reason: req.Reason, Notes: req.Notes}
	case "revert":
		decision = models.Revert{ReviewedBy: reviewer}
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "decision must be approve, reject or revert"))
		return
	}

	a, err := h.decider.Decide(r.Context(), assignmentID, decision)
	if err != nil {
		h.writeFailure(r.Context(), w, "decide assignment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) handleInviteTraining(w http.ResponseWriter, r *http.Request) {
	h.training(w, r, h.assignments.InviteTraining)
}

func (h *Handler) handleStartTraining(w http.ResponseWriter, r *http.Request) {
	h.training(w, r, h.assignments.StartTraining)
}

func (h *Handler) training(w http.ResponseWriter, r *http.Request, op func(context.Context, id.AssignmentID) (*models.Assignment, error)) {
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := op(r.Context(), assignmentID)
	if err != nil {
		h.writeFailure(r.Context(), w, "update training", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

type completeTrainingRequest struct {
	Passed bool `json:"passed"`
}

func (h *Handler) handleCompleteTraining(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req completeTrainingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	a, err := h.assignments.CompleteTraining(r.Context(), assignmentID, req.Passed)
	if err != nil {
		h.writeFailure(r.Context(), w, "complete training", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) handleRequirements(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	requirements, err := h.assignments.Requirements(r.Context(), assignmentID)
	if err != nil {
		h.writeFailure(r.Context(), w, "list requirements", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, requirements)
}

type checkoffRequest struct {
	RequirementID string `json:"requirement_id"`
	Checked       bool   `json:"checked"`
	Note          string `json:"note,omitempty"`
}

func (h *Handler) handleSetCheckoff(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req checkoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	requirementID, err := id.ParseRequirementID(req.RequirementID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := h.assignments.SetCheckoff(r.Context(), assignmentID, requirementID, req.Checked, req.Note)
	if err != nil {
		h.writeFailure(r.Context(), w, "set checkoff", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

type bulkCheckoffRequest struct {
	RequirementIDs []string `json:"requirement_ids"`
}

func (h *Handler) handleBulkCheckoff(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req bulkCheckoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	requirementIDs := make([]id.RequirementID, 0, len(req.RequirementIDs))
	for _, raw := range req.RequirementIDs {
		requirementID, err := id.ParseRequirementID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		requirementIDs = append(requirementIDs, requirementID)
	}

	a, err := h.assignments.BulkCheckoff(r.Context(), assignmentID, requirementIDs)
	if err != nil {
		h.writeFailure(r.Context(), w, "bulk checkoff", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) && h.logger != nil {
		h.logger.ErrorContext(ctx, "assignment operation failed", "operation", op, "error", err.Error())
	}
	httputil.WriteError(w, err)
}
