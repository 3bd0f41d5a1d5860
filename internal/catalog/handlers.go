package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-pricing/internal/common"
	"github.com/noah-isme/backoffice-pricing/internal/money"
	"github.com/noah-isme/backoffice-pricing/internal/pricing"
)

// Handler exposes unit pricing endpoints.
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

// UnitPricesResponse lists the derived price of each alternate unit.
type UnitPricesResponse struct {
	ProductID  string              `json:"productId"`
	BaseUnitID string              `json:"baseUnitId"`
	BasePrice  money.Money         `json:"basePrice"`
	UnitPrices []pricing.UnitPrice `json:"unitPrices"`
}

// UnitPrices handles GET /api/v1/products/{id}/unit-prices.
func (h *Handler) UnitPrices(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	product, err := h.service.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": UnitPricesResponse{
		ProductID:  product.ID,
		BaseUnitID: product.BaseUnitID,
		BasePrice:  product.BasePrice,
		UnitPrices: pricing.ProductUnitPrices(product),
	}})
}

type conversionRow struct {
	UnitID string          `json:"unitId" validate:"required"`
	Factor decimal.Decimal `json:"conversionFactor"`
}

type validateConversionsRequest struct {
	BaseUnitID      string          `json:"baseUnitId" validate:"required"`
	BasePrice       *money.Money    `json:"basePrice,omitempty"`
	UnitConversions []conversionRow `json:"unitConversions" validate:"dive"`
}

// ValidateConversions handles POST /api/v1/unit-conversions/validate. It
// hard-validates user-entered rows and, when they pass, returns the
// normalised rows with prices derived from basePrice.
func (h *Handler) ValidateConversions(w http.ResponseWriter, r *http.Request) {
	var req validateConversionsRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.ValidateStruct(req); err != nil {
		common.WriteError(w, err)
		return
	}
	rows := make([]pricing.UnitConversion, 0, len(req.UnitConversions))
	for _, row := range req.UnitConversions {
		rows = append(rows, pricing.UnitConversion{UnitID: row.UnitID, Factor: row.Factor})
	}
	if err := pricing.ValidateConversions(req.BaseUnitID, rows); err != nil {
		common.WriteError(w, common.ValidationFailed(err, pricing.FieldErrors(err)))
		return
	}
	resp := map[string]any{"unitConversions": pricing.NormalizeConversions(req.BaseUnitID, rows)}
	if req.BasePrice != nil {
		resp["unitPrices"] = pricing.DeriveUnitPrices(*req.BasePrice, req.BaseUnitID, rows)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": resp})
}
