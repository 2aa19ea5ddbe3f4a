package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hie-gateway/internal/transfer/models"
	"hie-gateway/internal/transfer/service"
	id "hie-gateway/pkg/domain"
	dErrors "hie-gateway/pkg/domain-errors"
	"hie-gateway/pkg/platform/httputil"
)

// maxPayloadBytes caps a submitted bundle.
const maxPayloadBytes = 4 << 20

type Service interface {
	Request(ctx context.Context, p service.RequestParams) (*service.RequestResult, error)
	Acknowledge(ctx context.Context, transferID id.TransferID) (*models.Transfer, error)
	ReceivePayload(ctx context.Context, transferID id.TransferID, raw []byte) (*models.Transfer, error)
	Status(ctx context.Context, transferID id.TransferID) (*models.Transfer, error)
	Redrive(ctx context.Context, transferID id.TransferID) (*models.Transfer, error)
}

type Handler struct {
	transfers Service
	logger    *slog.Logger
}

func New(transfers Service, logger *slog.Logger) *Handler {
	return &Handler{transfers: transfers, logger: logger}
}

// Register mounts the requester and holder routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/health-information/request", h.handleRequest)
	r.Get("/v1/health-information/transfers/{id}", h.handleStatus)
	r.Post("/v1/health-information/transfers/{id}/ack", h.handleAcknowledge)
	r.Post("/v1/health-information/transfers/{id}/data", h.handleReceive)
}

// RegisterAdmin mounts operator routes. The caller guards them.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/transfers/{id}/redrive", h.handleRedrive)
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[HealthInfoRequest](w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.transfers.Request(ctx, req.params())
	if err != nil {
		h.logger.WarnContext(ctx, "health information request rejected",
			"holder_id", req.HolderID,
			"requester_id", req.RequesterID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, HealthInfoResponse{
		RequestID: string(res.Transfer.ID),
		ConsentID: string(res.Transfer.ConsentID),
		Status:    string(res.Transfer.Status),
		Message:   res.Message,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	transferID, ok := transferIDParam(w, r)
	if !ok {
		return
	}
	t, err := h.transfers.Status(r.Context(), transferID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTransferResponse(t))
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	transferID, ok := transferIDParam(w, r)
	if !ok {
		return
	}
	t, err := h.transfers.Acknowledge(r.Context(), transferID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTransferResponse(t))
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	transferID, ok := transferIDParam(w, r)
	if !ok {
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "payload too large"))
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read payload"))
		return
	}

	t, err := h.transfers.ReceivePayload(ctx, transferID, raw)
	if err != nil {
		h.logger.WarnContext(ctx, "health data submission rejected", "transfer_id", transferID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HealthInfoResponse{
		RequestID: string(t.ID),
		ConsentID: string(t.ConsentID),
		Status:    string(t.Status),
		Message:   "data received, delivery scheduled",
	})
}

func (h *Handler) handleRedrive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	transferID, ok := transferIDParam(w, r)
	if !ok {
		return
	}
	t, err := h.transfers.Redrive(ctx, transferID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "transfer redriven by operator", "transfer_id", transferID)
	httputil.WriteJSON(w, http.StatusOK, toTransferResponse(t))
}

func transferIDParam(w http.ResponseWriter, r *http.Request) (id.TransferID, bool) {
	transferID, err := id.ParseTransferID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return transferID, true
}
