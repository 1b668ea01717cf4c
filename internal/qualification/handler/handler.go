// Package handler exposes the qualification registry over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"experthub/internal/qualification/models"
	"experthub/internal/qualification/service"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/platform/httputil"
	"experthub/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, params service.CreateParams) (*models.Qualification, error)
	Lookup(ctx context.Context, userID id.UserID, offeringID id.OfferingID) (*models.Qualification, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Qualification, error)
	Delete(ctx context.Context, qualID id.QualificationID) error
}

type Handler struct {
	logger         *slog.Logger
	qualifications Service
}

func New(qualifications Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, qualifications: qualifications}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/qualifications", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/lookup", h.handleLookup)
		r.Delete("/{qualificationID}", h.handleDelete)
	})
}

type createRequest struct {
	UserID     string    `json:"user_id"`
	OfferingID string    `json:"offering_id"`
	PassedAt   time.Time `json:"training_passed_at"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offeringID, err := id.ParseOfferingID(req.OfferingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	q, err := h.qualifications.Create(r.Context(), service.CreateParams{
		UserID:     userID,
		OfferingID: offeringID,
		PassedAt:   req.PassedAt,
		CreatedBy:  requestcontext.Actor(r.Context()),
	})
	if err != nil {
		h.writeFailure(r.Context(), w, "create qualification", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, q)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(r.URL.Query().Get("user_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offeringID, err := id.ParseOfferingID(r.URL.Query().Get("offering_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	q, err := h.qualifications.Lookup(r.Context(), userID, offeringID)
	if err != nil {
		h.writeFailure(r.Context(), w, "lookup qualification", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, q)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(r.URL.Query().Get("user_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	list, err := h.qualifications.ListByUser(r.Context(), userID)
	if err != nil {
		h.writeFailure(r.Context(), w, "list qualifications", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	qualID, err := id.ParseQualificationID(chi.URLParam(r, "qualificationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.qualifications.Delete(r.Context(), qualID); err != nil {
		h.writeFailure(r.Context(), w, "delete qualification", err)
		return
	}
	httputil.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) && h.logger != nil {
		h.logger.ErrorContext(ctx, "qualification operation failed", "operation", op, "error", err.Error())
	}
	httputil.WriteError(w, err)
}
