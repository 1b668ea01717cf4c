// Package handler exposes service approvals and annual fee billing over
// HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"experthub/internal/billing/models"
	"experthub/internal/billing/service"
	id "experthub/pkg/domain"
	dErrors "experthub/pkg/domain-errors"
	"experthub/pkg/platform/httputil"
	"experthub/pkg/requestcontext"
)

type Service interface {
	RecordApproval(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID, status models.ApprovalStatus, createdBy string) (*models.Approval, error)
	SetStatus(ctx context.Context, approvalID id.ApprovalID, status models.ApprovalStatus) (*models.Approval, error)
	PayAnnualFee(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID, reference string, amount int64) (*models.Approval, error)
	Tracker(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID) (*service.TrackerView, error)
	QualifiedLeads(ctx context.Context, orgID id.OrgID, offeringID id.OfferingID) ([]service.LeadInfo, error)
	ListByOrg(ctx context.Context, orgID id.OrgID) ([]*models.Approval, error)
	UpcomingRenewals(ctx context.Context) ([]service.Renewal, error)
}

type Handler struct {
	logger    *slog.Logger
	approvals Service
}

func New(approvals Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, approvals: approvals}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/approvals", func(r chi.Router) {
		r.Post("/", h.handleRecord)
		r.Get("/", h.handleList)
		r.Get("/tracker", h.handleTracker)
		r.Get("/qualified-leads", h.handleQualifiedLeads)
		r.Get("/renewals", h.handleRenewals)
		r.Post("/pay-annual-fee", h.handlePayAnnualFee)
		r.Put("/{approvalID}/status", h.handleSetStatus)
	})
}

type recordRequest struct {
	OrgID      string `json:"organization_id"`
	OfferingID string `json:"offering_id"`
	Status     string `json:"status,omitempty"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	orgID, offeringID, err := parsePair(req.OrgID, req.OfferingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := models.ApprovalPending
	if req.Status != "" {
		status, err = models.ParseApprovalStatus(req.Status)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	a, err := h.approvals.RecordApproval(r.Context(), orgID, offeringID, status, requestcontext.Actor(r.Context()))
	if err != nil {
		h.writeFailure(r.Context(), w, "record approval", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(r.URL.Query().Get("organization_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	list, err := h.approvals.ListByOrg(r.Context(), orgID)
	if err != nil {
		h.writeFailure(r.Context(), w, "list approvals", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) handleTracker(w http.ResponseWriter, r *http.Request) {
	orgID, offeringID, err := parsePair(r.URL.Query().Get("organization_id"), r.URL.Query().Get("offering_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	view, err := h.approvals.Tracker(r.Context(), orgID, offeringID)
	if err != nil {
		h.writeFailure(r.Context(), w, "approval tracker", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleQualifiedLeads(w http.ResponseWriter, r *http.Request) {
	orgID, offeringID, err := parsePair(r.URL.Query().Get("organization_id"), r.URL.Query().Get("offering_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	leads, err := h.approvals.QualifiedLeads(r.Context(), orgID, offeringID)
	if err != nil {
		h.writeFailure(r.Context(), w, "qualified leads", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, leads)
}

func (h *Handler) handleRenewals(w http.ResponseWriter, r *http.Request) {
	renewals, err := h.approvals.UpcomingRenewals(r.Context())
	if err != nil {
		h.writeFailure(r.Context(), w, "upcoming renewals", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, renewals)
}

type payRequest struct {
	OrgID            string `json:"organization_id"`
	OfferingID       string `json:"offering_id"`
	PaymentReference string `json:"payment_reference"`
	PaymentAmount    int64  `json:"payment_amount"`
}

func (h *Handler) handlePayAnnualFee(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	orgID, offeringID, err := parsePair(req.OrgID, req.OfferingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := h.approvals.PayAnnualFee(r.Context(), orgID, offeringID, req.PaymentReference, req.PaymentAmount)
	if err != nil {
		h.writeFailure(r.Context(), w, "pay annual fee", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	approvalID, err := id.ParseApprovalID(chi.URLParam(r, "approvalID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	status, err := models.ParseApprovalStatus(req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := h.approvals.SetStatus(r.Context(), approvalID, status)
	if err != nil {
		h.writeFailure(r.Context(), w, "set approval status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func parsePair(rawOrg, rawOffering string) (id.OrgID, id.OfferingID, error) {
	orgID, err := id.ParseOrgID(rawOrg)
	if err != nil {
		return id.OrgID{}, id.OfferingID{}, err
	}
	offeringID, err := id.ParseOfferingID(rawOffering)
	if err != nil {
		return id.OrgID{}, id.OfferingID{}, err
	}
	return orgID, offeringID, nil
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) && h.logger != nil {
		h.logger.ErrorContext(ctx, "billing operation failed", "operation", op, "error", err.Error())
	}
	httputil.WriteError(w, err)
}
