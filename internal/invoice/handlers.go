package invoice

import (
	"net/http"
	"strings"

	"github.com/noah-isme/backoffice-pricing/internal/common"
	"github.com/noah-isme/backoffice-pricing/internal/obs"
	"github.com/noah-isme/backoffice-pricing/internal/submission"
)

// Handler exposes invoice quote and submission endpoints.
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

func (h *Handler) decodeDraft(w http.ResponseWriter, r *http.Request) (Draft, bool) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice service not configured", nil)
		return Draft{}, false
	}
	var d Draft
	if err := common.DecodeJSON(r, &d); err != nil {
		common.WriteError(w, err)
		return Draft{}, false
	}
	if err := common.ValidateStruct(d); err != nil {
		common.WriteError(w, err)
		return Draft{}, false
	}
	return d, true
}

// Quote handles POST /api/v1/invoices/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	d, ok := h.decodeDraft(w, r)
	if !ok {
		return
	}
	userID, _ := common.ActingUser(r.Context())
	result, err := h.service.Quote(r.Context(), d, userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// Submit handles POST /api/v1/invoices/submissions.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	d, ok := h.decodeDraft(w, r)
	if !ok {
		return
	}
	userID, err := common.RequireActingUser(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	obs.Annotate(r.Context(), obs.FieldSubmissionKind, string(submission.KindInvoice))
	receipt, payload, err := h.service.Submit(r.Context(), d, userID, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	obs.Annotate(r.Context(), obs.FieldTaskID, receipt.TaskID)
	common.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]any{
		"submission": receipt,
		"payload":    payload,
	}})
}
