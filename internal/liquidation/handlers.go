package liquidation

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backoffice-pricing/internal/common"
	"github.com/noah-isme/backoffice-pricing/internal/obs"
	"github.com/noah-isme/backoffice-pricing/internal/submission"
)

// Handler exposes contract liquidation endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// decodeRequest accepts an empty body as a request without overrides.
func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (Request, bool) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "liquidation service not configured", nil)
		return Request{}, false
	}
	var req Request
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &req); err != nil {
			common.WriteError(w, err)
			return Request{}, false
		}
	}
	if err := common.ValidateStruct(req); err != nil {
		common.WriteError(w, err)
		return Request{}, false
	}
	return req, true
}

// Preview handles POST /api/v1/contracts/{contractID}/liquidation/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	p, err := h.service.Preview(r.Context(), contractParam(r), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// Confirm handles POST /api/v1/contracts/{contractID}/liquidation/confirmation.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	userID, err := common.RequireActingUser(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	obs.Annotate(r.Context(), obs.FieldSubmissionKind, string(submission.KindLiquidation))
	result, err := h.service.Confirm(r.Context(), contractParam(r), req, userID, idempotencyKey(r))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	obs.Annotate(r.Context(), obs.FieldTaskID, result.Submission.TaskID)
	common.JSON(w, http.StatusAccepted, map[string]any{"data": result})
}

// Revert handles POST /api/v1/contracts/{contractID}/liquidation/revert.
func (h *Handler) Revert(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "liquidation service not configured", nil)
		return
	}
	userID, err := common.RequireActingUser(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	obs.Annotate(r.Context(), obs.FieldSubmissionKind, string(submission.KindLiquidation))
	result, err := h.service.Revert(r.Context(), contractParam(r), userID, idempotencyKey(r))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	obs.Annotate(r.Context(), obs.FieldTaskID, result.Submission.TaskID)
	common.JSON(w, http.StatusAccepted, map[string]any{"data": result})
}

func contractParam(r *http.Request) string {
	id := strings.TrimSpace(chi.URLParam(r, "contractID"))
	obs.Annotate(r.Context(), obs.FieldContractID, id)
	return id
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}
