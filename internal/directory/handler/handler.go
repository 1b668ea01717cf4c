// Package handler exposes the directory over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"experthub/internal/directory/models"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/platform/httputil"
)

// Service defines the directory operations the handler depends on.
type Service interface {
	CreateUser(ctx context.Context, name, email string) (*models.User, error)
	GetUser(ctx context.Context, userID id.UserID) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	DeactivateUser(ctx context.Context, userID id.UserID) (*models.User, error)
	CreateOrganization(ctx context.Context, name string) (*models.Organization, error)
	GetOrganization(ctx context.Context, orgID id.OrgID) (*models.Organization, error)
	ListOrganizations(ctx context.Context) ([]*models.Organization, error)
	DeactivateOrganization(ctx context.Context, orgID id.OrgID) (*models.Organization, error)
}

type Handler struct {
	logger    *slog.Logger
	directory Service
}

func New(directory Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, directory: directory}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/directory", func(r chi.Router) {
		r.Post("/users", h.handleCreateUser)
		r.Get("/users", h.handleListUsers)
		r.Get("/users/{userID}", h.handleGetUser)
		r.Post("/users/{userID}/deactivate", h.handleDeactivateUser)

		r.Post("/organizations", h.handleCreateOrganization)
		r.Get("/organizations", h.handleListOrganizations)
		r.Get("/organizations/{orgID}", h.handleGetOrganization)
		r.Post("/organizations/{orgID}/deactivate", h.handleDeactivateOrganization)
	})
}

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	user, err := h.directory.CreateUser(ctx, req.Name, req.Email)
	if err != nil {
		h.writeFailure(ctx, w, "create user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.directory.ListUsers(r.Context())
	if err != nil {
		h.writeFailure(r.Context(), w, "list users", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, users)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, err := h.directory.GetUser(r.Context(), userID)
	if err != nil {
		h.writeFailure(r.Context(), w, "get user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, err := h.directory.DeactivateUser(r.Context(), userID)
	if err != nil {
		h.writeFailure(r.Context(), w, "deactivate user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

type createOrganizationRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	org, err := h.directory.CreateOrganization(ctx, req.Name)
	if err != nil {
		h.writeFailure(ctx, w, "create organization", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, org)
}

func (h *Handler) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.directory.ListOrganizations(r.Context())
	if err != nil {
		h.writeFailure(r.Context(), w, "list organizations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, orgs)
}

func (h *Handler) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	org, err := h.directory.GetOrganization(r.Context(), orgID)
	if err != nil {
		h.writeFailure(r.Context(), w, "get organization", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, org)
}

func (h *Handler) handleDeactivateOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	org, err := h.directory.DeactivateOrganization(r.Context(), orgID)
	if err != nil {
		h.writeFailure(r.Context(), w, "deactivate organization", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, org)
}

// writeFailure logs internal failures and maps the error onto the response.
func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "directory operation failed",
			"operation", op,
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
