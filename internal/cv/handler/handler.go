// Package handler exposes the CV lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"experthub/internal/cv/models"
	"experthub/internal/cv/service"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/platform/httputil"
	"experthub/pkg/requestcontext"
)

// Service defines the CV operations the handler depends on.
type Service interface {
	Create(ctx context.Context, params service.CreateParams) (*models.CV, error)
	Get(ctx context.Context, cvID id.CVID) (*service.View, error)
	Latest(ctx context.Context, userID id.UserID, orgID id.OrgID) (*models.CV, error)
	History(ctx context.Context, userID id.UserID, orgID id.OrgID) ([]models.HistoryEntry, error)
	UpdateContent(ctx context.Context, cvID id.CVID, content models.Content) (*models.CV, error)
	Submit(ctx context.Context, cvID id.CVID) (*models.CV, error)
	InitiatePayment(ctx context.Context, cvID id.CVID, reference string, amount int64) (*models.CV, error)
	ConfirmPayment(ctx context.Context, cvID id.CVID) (*models.CV, error)
	StartReview(ctx context.Context, cvID id.CVID) (*models.CV, error)
	Unlock(ctx context.Context, cvID id.CVID, unlockedBy, reason string) (*models.CV, error)
	Resubmit(ctx context.Context, cvID id.CVID) (*models.CV, error)
	SetItemReviewLock(ctx context.Context, cvID id.CVID, section string, index int, locked bool) (*models.CV, error)
}

type Handler struct {
	logger *slog.Logger
	cvs    Service
}

func New(cvs Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, cvs: cvs}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/cvs", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/latest", h.handleLatest)
		r.Get("/history", h.handleHistory)

		r.Route("/{cvID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Put("/content", h.handleUpdateContent)
			r.Post("/submit", h.handleSubmit)
			r.Post("/payment", h.handleInitiatePayment)
			r.Post("/payment/confirm", h.handleConfirmPayment)
			r.Post("/review", h.handleStartReview)
			r.Post("/unlock", h.handleUnlock)
			r.Post("/resubmit", h.handleResubmit)
			r.Put("/item-locks", h.handleSetItemLock)
		})
	})
}

type createRequest struct {
	UserID  string         `json:"user_id"`
	OrgID   string         `json:"organization_id"`
	Content models.Content `json:"content"`
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
	orgID, err := id.ParseOrgID(req.OrgID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cv, err := h.cvs.Create(r.Context(), service.CreateParams{
		UserID:    userID,
		OrgID:     orgID,
		Content:   req.Content,
		CreatedBy: requestcontext.Actor(r.Context()),
	})
	if err != nil {
		h.writeFailure(r.Context(), w, "create cv", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, cv)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	cvID, err := id.ParseCVID(chi.URLParam(r, "cvID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.cvs.Get(r.Context(), cvID)
	if err != nil {
		h.writeFailure(r.Context(), w, "get cv", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) userOrg(r *http.Request) (id.UserID, id.OrgID, error) {
	userID, err := id.ParseUserID(r.URL.Query().Get("user_id"))
	if err != nil {
		return id.UserID{}, id.OrgID{}, err
	}
	orgID, err := id.ParseOrgID(r.URL.Query().Get("organization_id"))
	if err != nil {
		return id.UserID{}, id.OrgID{}, err
	}
	return userID, orgID, nil
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	userID, orgID, err := h.userOrg(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cv, err := h.cvs.Latest(r.Context(), userID, orgID)
	if err != nil {
		h.writeFailure(r.Context(), w, "latest cv", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cv)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, orgID, err := h.userOrg(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.cvs.History(r.Context(), userID, orgID)
	if err != nil {
		h.writeFailure(r.Context(), w, "cv history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	cvID, err := id.ParseCVID(chi.URLParam(r, "cvID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var content models.Content
	if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	cv, err := h.cvs.UpdateContent(r.Context(), cvID, content)
	if err != nil {
		h.writeFailure(r.Context(), w, "update cv content", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cv)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "submit cv", h.cvs.Submit)
}

type initiatePaymentRequest struct {
	Reference string `json:"payment_reference"`
	Amount    int64  `json:"payment_amount"`
}

func (h *Handler) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	cvID, err := id.ParseCVID(chi.URLParam(r, "cvID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	cv, err := h.cvs.InitiatePayment(r.Context(), cvID, req.Reference, req.Amount)
	if err != nil {
		h.writeFailure(r.Context(), w, "initiate payment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cv)
}

func (h *Handler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "confirm payment", h.cvs.ConfirmPayment)
}

func (h *Handler) handleStartReview(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "start review", h.cvs.StartReview)
}

type unlockRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	cvID, err := id.ParseCVID(chi.URLParam(r, "cvID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req unlockRequest
	if r.Body != nil {
		// Body is optional; ignore decode failures on empty bodies.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	cv, err := h.cvs.Unlock(r.Context(), cvID, requestcontext.Actor(r.Context()), req.Reason)
	if err != nil {
		h.writeFailure(r.Context(), w, "unlock cv", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cv)
}

func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "resubmit cv", h.cvs.Resubmit)
}

type itemLockRequest struct {
	Section string `json:"section"`
	Index   int    `json:"index"`
	Locked  bool   `json:"locked"`
}

func (h *Handler) handleSetItemLock(w http.ResponseWriter, r *http.Request) {
	cvID, err := id.ParseCVID(chi.URLParam(r, "cvID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req itemLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	cv, err := h.cvs.SetItemReviewLock(r.Context(), cvID, req.Section, req.Index, req.Locked)
	if err != nil {
		h.writeFailure(r.Context(), w, "set item review lock", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cv)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, id.CVID) (*models.CV, error)) {
	cvID, err := id.ParseCVID(chi.URLParam(r, "cvID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cv, err := fn(r.Context(), cvID)
	if err != nil {
		h.writeFailure(r.Context(), w, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cv)
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "cv operation failed",
			"operation", op,
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
