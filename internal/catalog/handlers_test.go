package catalog_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backoffice-pricing/internal/catalog"
	"github.com/noah-isme/backoffice-pricing/internal/pricing"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _ := newCachedService(t, &fakeStore{products: map[string]pricing.Product{"milk": milkProduct()}})
	h := catalog.NewHandler(catalog.HandlerConfig{Service: svc})
	r := chi.NewRouter()
	r.Get("/api/v1/products/{id}/unit-prices", h.UnitPrices)
	r.Post("/api/v1/unit-conversions/validate", h.ValidateConversions)
	return r
}

type unitPricesBody struct {
	Data struct {
		ProductID  string `json:"productId"`
		UnitPrices []struct {
			UnitID string `json:"unitId"`
			Price  string `json:"price"`
		} `json:"unitPrices"`
	} `json:"data"`
}

func TestUnitPricesHandler(t *testing.T) {
	router := newRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/milk/unit-prices", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body unitPricesBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "milk", body.Data.ProductID)
	require.Len(t, body.Data.UnitPrices, 2, "zero factor must be skipped")
	require.Equal(t, "loc", body.Data.UnitPrices[0].UnitID)
	require.Equal(t, "10000", body.Data.UnitPrices[0].Price)
	require.Equal(t, "2500", body.Data.UnitPrices[1].Price)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/ghost/unit-prices", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestValidateConversionsHandler(t *testing.T) {
	router := newRouter(t)

	t.Run("rejects zero factor and self conversion", func(t *testing.T) {
		payload := `{"baseUnitId":"thung","unitConversions":[{"unitId":"loc","conversionFactor":0},{"unitId":"thung","conversionFactor":"1"}]}`
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/unit-conversions/validate", strings.NewReader(payload)))
		require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

		var body errorBody
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, "VALIDATION_FAILED", body.Error.Code)
		require.Contains(t, body.Error.Details, "unitConversions[0].conversionFactor")
		require.Contains(t, body.Error.Details, "unitConversions[1].unitId")
	})

	t.Run("derives prices for valid rows", func(t *testing.T) {
		payload := `{"baseUnitId":"thung","basePrice":"120000","unitConversions":[{"unitId":"loc","conversionFactor":"12"},{"unitId":"loc","conversionFactor":"6"}]}`
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/unit-conversions/validate", strings.NewReader(payload)))
		require.Equal(t, http.StatusOK, rr.Code)
		require.Contains(t, rr.Body.String(), `"price":"20000"`)
	})

	t.Run("requires base unit", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/unit-conversions/validate", strings.NewReader(`{"unitConversions":[]}`)))
		require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})
}

type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}
