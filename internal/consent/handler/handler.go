package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hie-gateway/internal/consent/models"
	id "hie-gateway/pkg/domain"
	"hie-gateway/pkg/platform/httputil"
)

// Service is the consent ledger surface the handler needs.
type Service interface {
	Initiate(ctx context.Context, subjectID id.SubjectID, holderID id.EntityID, purpose models.Purpose) (*models.Request, error)
	Get(ctx context.Context, consentID id.ConsentID) (*models.Request, error)
	Notify(ctx context.Context, consentID id.ConsentID, status models.Status) (models.NotifyResult, error)
}

type Handler struct {
	consent Service
	logger  *slog.Logger
}

func New(consent Service, logger *slog.Logger) *Handler {
	return &Handler{consent: consent, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/consent/init", h.handleInitiate)
	r.Post("/v1/consent/notify", h.handleNotify)
	r.Get("/v1/consent/{id}", h.handleGet)
}

func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[InitiateRequest](w, r, h.logger)
	if !ok {
		return
	}

	consent, err := h.consent.Initiate(ctx, id.SubjectID(req.SubjectID), id.EntityID(req.HolderID), req.purpose())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to initiate consent", "subject_id", req.SubjectID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(consent))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	consentID, err := id.ParseConsentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	consent, err := h.consent.Get(ctx, consentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(consent))
}

func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[NotifyRequest](w, r, h.logger)
	if !ok {
		return
	}
	consentID, err := id.ParseConsentID(req.ConsentRequestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.consent.Notify(ctx, consentID, req.parsed)
	if err != nil {
		h.logger.WarnContext(ctx, "consent notification rejected", "consent_id", consentID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ConsentResponse{
		ConsentRequestID: string(res.ID),
		Status:           string(res.Status),
	})
}

func toResponse(c *models.Request) ConsentResponse {
	created := c.CreatedAt
	return ConsentResponse{
		ConsentRequestID: string(c.ID),
		Status:           string(c.Status),
		SubjectID:        string(c.SubjectID),
		HolderID:         string(c.HolderID),
		CreatedAt:        &created,
	}
}
