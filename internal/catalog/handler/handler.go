// Package handler exposes the service catalog over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"experthub/internal/catalog/models"
	"experthub/internal/catalog/service"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/platform/httputil"
	"experthub/pkg/requestcontext"
)

// Service defines the catalog operations the handler depends on.
type Service interface {
	CreateParent(ctx context.Context, name, description string) (*models.ServiceParent, error)
	ListParents(ctx context.Context) ([]*models.ServiceParent, error)
	CreateOffering(ctx context.Context, parentID id.ParentID, version, name, description string) (*models.ServiceOffering, error)
	GetOffering(ctx context.Context, offeringID id.OfferingID) (*models.ServiceOffering, error)
	ListOfferings(ctx context.Context) ([]*models.ServiceOffering, error)
	ListOfferingsByParent(ctx context.Context, parentID id.ParentID) ([]*models.ServiceOffering, error)
	DeprecateOffering(ctx context.Context, offeringID id.OfferingID) (*models.ServiceOffering, error)
	CreateRequirement(ctx context.Context, params service.CreateRequirementParams) (*models.Requirement, error)
	RetireRequirement(ctx context.Context, reqID id.RequirementID, retiredBy, reason string) (*models.Requirement, error)
	ListActiveRequirements(ctx context.Context, offeringID id.OfferingID, role models.Role) ([]*models.Requirement, error)
	RequirementHistory(ctx context.Context, reqID id.RequirementID) (*models.RequirementHistory, error)
	UpdateRequirementOrder(ctx context.Context, orders []service.RequirementOrder) error
}

type Handler struct {
	logger  *slog.Logger
	catalog Service
}

func New(catalog Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, catalog: catalog}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/catalog", func(r chi.Router) {
		r.Post("/parents", h.handleCreateParent)
		r.Get("/parents", h.handleListParents)
		r.Get("/parents/{parentID}/offerings", h.handleListOfferingsByParent)

		r.Post("/offerings", h.handleCreateOffering)
		r.Get("/offerings", h.handleListOfferings)
		r.Get("/offerings/{offeringID}", h.handleGetOffering)
		r.Post("/offerings/{offeringID}/deprecate", h.handleDeprecateOffering)
		r.Get("/offerings/{offeringID}/requirements", h.handleListRequirements)

		r.Post("/requirements", h.handleCreateRequirement)
		r.Post("/requirements/order", h.handleUpdateOrder)
		r.Get("/requirements/{requirementID}/history", h.handleRequirementHistory)
		r.Post("/requirements/{requirementID}/retire", h.handleRetireRequirement)
	})
}

type createParentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) handleCreateParent(w http.ResponseWriter, r *http.Request) {
	var req createParentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	parent, err := h.catalog.CreateParent(r.Context(), req.Name, req.Description)
	if err != nil {
		h.writeFailure(r.Context(), w, "create parent", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, parent)
}

func (h *Handler) handleListParents(w http.ResponseWriter, r *http.Request) {
	parents, err := h.catalog.ListParents(r.Context())
	if err != nil {
		h.writeFailure(r.Context(), w, "list parents", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, parents)
}

type createOfferingRequest struct {
	ParentID    string `json:"parent_id"`
	Version     string `json:"version"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) handleCreateOffering(w http.ResponseWriter, r *http.Request) {
	var req createOfferingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	parentID, err := id.ParseParentID(req.ParentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offering, err := h.catalog.CreateOffering(r.Context(), parentID, req.Version, req.Name, req.Description)
	if err != nil {
		h.writeFailure(r.Context(), w, "create offering", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, offering)
}

func (h *Handler) handleListOfferings(w http.ResponseWriter, r *http.Request) {
	offerings, err := h.catalog.ListOfferings(r.Context())
	if err != nil {
		h.writeFailure(r.Context(), w, "list offerings", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, offerings)
}

func (h *Handler) handleListOfferingsByParent(w http.ResponseWriter, r *http.Request) {
	parentID, err := id.ParseParentID(chi.URLParam(r, "parentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offerings, err := h.catalog.ListOfferingsByParent(r.Context(), parentID)
	if err != nil {
		h.writeFailure(r.Context(), w, "list offerings by parent", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, offerings)
}

func (h *Handler) handleGetOffering(w http.ResponseWriter, r *http.Request) {
	offeringID, err := id.ParseOfferingID(chi.URLParam(r, "offeringID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offering, err := h.catalog.GetOffering(r.Context(), offeringID)
	if err != nil {
		h.writeFailure(r.Context(), w, "get offering", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, offering)
}

func (h *Handler) handleDeprecateOffering(w http.ResponseWriter, r *http.Request) {
	offeringID, err := id.ParseOfferingID(chi.URLParam(r, "offeringID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offering, err := h.catalog.DeprecateOffering(r.Context(), offeringID)
	if err != nil {
		h.writeFailure(r.Context(), w, "deprecate offering", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, offering)
}

type createRequirementRequest struct {
	OfferingID    string `json:"offering_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Applicability string `json:"applicability"`
	Order         *int   `json:"order"`
	Replaces      string `json:"replaces"`
}

func (h *Handler) handleCreateRequirement(w http.ResponseWriter, r *http.Request) {
	var req createRequirementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	offeringID, err := id.ParseOfferingID(req.OfferingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	applicability, err := models.ParseApplicability(req.Applicability)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	params := service.CreateRequirementParams{
		OfferingID:    offeringID,
		Title:         req.Title,
		Description:   req.Description,
		Applicability: applicability,
		Order:         req.Order,
		CreatedBy:     requestcontext.Actor(r.Context()),
	}
	if req.Replaces != "" {
		replaces, err := id.ParseRequirementID(req.Replaces)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		params.Replaces = &replaces
	}

	requirement, err := h.catalog.CreateRequirement(r.Context(), params)
	if err != nil {
		h.writeFailure(r.Context(), w, "create requirement", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, requirement)
}

type retireRequirementRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRetireRequirement(w http.ResponseWriter, r *http.Request) {
	reqID, err := id.ParseRequirementID(chi.URLParam(r, "requirementID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req retireRequirementRequest
	if r.Body != nil {
		// Body is optional; ignore decode failures on empty bodies.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	requirement, err := h.catalog.RetireRequirement(r.Context(), reqID, requestcontext.Actor(r.Context()), req.Reason)
	if err != nil {
		h.writeFailure(r.Context(), w, "retire requirement", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, requirement)
}

func (h *Handler) handleListRequirements(w http.ResponseWriter, r *http.Request) {
	offeringID, err := id.ParseOfferingID(chi.URLParam(r, "offeringID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	role, err := models.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	requirements, err := h.catalog.ListActiveRequirements(r.Context(), offeringID, role)
	if err != nil {
		h.writeFailure(r.Context(), w, "list requirements", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, requirements)
}

func (h *Handler) handleRequirementHistory(w http.ResponseWriter, r *http.Request) {
	reqID, err := id.ParseRequirementID(chi.URLParam(r, "requirementID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	history, err := h.catalog.RequirementHistory(r.Context(), reqID)
	if err != nil {
		h.writeFailure(r.Context(), w, "requirement history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, history)
}

type updateOrderRequest struct {
	Orders []service.RequirementOrder `json:"orders"`
}

func (h *Handler) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.catalog.UpdateRequirementOrder(r.Context(), req.Orders); err != nil {
		h.writeFailure(r.Context(), w, "update requirement order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "catalog operation failed",
			"operation", op,
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
