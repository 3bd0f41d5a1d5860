package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backoffice-pricing/internal/app"
	"github.com/noah-isme/backoffice-pricing/internal/auth"
	"github.com/noah-isme/backoffice-pricing/internal/catalog"
	"github.com/noah-isme/backoffice-pricing/internal/config"
	"github.com/noah-isme/backoffice-pricing/internal/health"
	"github.com/noah-isme/backoffice-pricing/internal/invoice"
	"github.com/noah-isme/backoffice-pricing/internal/liquidation"
	"github.com/noah-isme/backoffice-pricing/internal/market"
	"github.com/noah-isme/backoffice-pricing/internal/money"
	"github.com/noah-isme/backoffice-pricing/internal/pricing"
	"github.com/noah-isme/backoffice-pricing/internal/ratelimit"
	"github.com/noah-isme/backoffice-pricing/internal/submission"
)

type productStore struct{}

func (productStore) LoadProducts(_ context.Context, ids []string) ([]pricing.Product, error) {
	var out []pricing.Product
	for _, id := range ids {
		if id == "rice" {
			out = append(out, pricing.Product{ID: "rice", BasePrice: money.FromInt(120000), BaseUnitID: "bag"})
		}
	}
	return out, nil
}

type contractStore struct{}

func (contractStore) Get(context.Context, string) (liquidation.Contract, error) {
	return liquidation.Contract{}, liquidation.ErrContractNotFound
}

func (contractStore) Apply(context.Context, string, liquidation.Transition, map[string]money.Money, func(context.Context) error) error {
	return liquidation.ErrStaleState
}

type noMarket struct{}

func (noMarket) Prices(context.Context, []string) (market.Prices, error) { return market.Prices{}, nil }

type countingEnqueuer struct{ n int }

func (c *countingEnqueuer) Enqueue(_ context.Context, env submission.Envelope) (submission.Receipt, error) {
	c.n++
	return submission.Receipt{TaskID: string(env.Kind) + ":" + env.IdempotencyKey, Kind: env.Kind}, nil
}

type routerFixture struct {
	handler  http.Handler
	verifier *auth.Verifier
	enq      *countingEnqueuer
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		RateLimitPerIP:         "1000-M",
		RateLimitSubmitPerUser: 10,
		RateLimitSubmitWindow:  time.Minute,
		IdempotencyTTL:         time.Hour,
	}
	store, err := ratelimit.NewLimiterStore(rdb)
	require.NoError(t, err)
	verifier, err := auth.NewVerifier(auth.Config{Secret: "test-secret"})
	require.NoError(t, err)

	enq := &countingEnqueuer{}
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{Store: productStore{}, Logger: zerolog.Nop()})
	require.NoError(t, err)
	invoiceSvc, err := invoice.NewService(invoice.ServiceConfig{Catalog: catalogSvc, Enqueuer: enq, Logger: zerolog.Nop()})
	require.NoError(t, err)
	liquidationSvc, err := liquidation.NewService(liquidation.ServiceConfig{Store: contractStore{}, Market: noMarket{}, Enqueuer: enq, Logger: zerolog.Nop()})
	require.NoError(t, err)

	handler, err := app.NewRouter(app.RouterConfig{
		Config:       cfg,
		Logger:       zerolog.Nop(),
		Services:     &app.Services{Catalog: catalogSvc, Invoice: invoiceSvc, Liquidation: liquidationSvc},
		Verifier:     verifier,
		Redis:        rdb,
		LimiterStore: store,
		Gatherer:     prometheus.NewRegistry(),
		Checks:       map[string]health.Check{"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	})
	require.NoError(t, err)
	return routerFixture{handler: handler, verifier: verifier, enq: enq}
}

func (f routerFixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func (f routerFixture) bearer(t *testing.T, userID string) map[string]string {
	t.Helper()
	token, err := f.verifier.Issue(userID, time.Minute)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestRouterHealthAndMetrics(t *testing.T) {
	f := newRouterFixture(t)
	live := f.do(t, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, live.Code)
	require.Equal(t, "nosniff", live.Header().Get("X-Content-Type-Options"))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/ready", "", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", "", nil).Code)
}

func TestRouterRequiresBearerToken(t *testing.T) {
	f := newRouterFixture(t)
	rr := f.do(t, http.MethodGet, "/api/v1/products/rice/unit-prices", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/v1/products/rice/unit-prices", "", f.bearer(t, "user-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"basePrice":"120000"`)
}

func TestRouterRejectsReplayedInvoiceSubmission(t *testing.T) {
	f := newRouterFixture(t)
	headers := f.bearer(t, "user-1")
	headers["Idempotency-Key"] = "inv-1"
	body := `{"items":[{"productId":"rice","quantity":1}]}`

	first := f.do(t, http.MethodPost, "/api/v1/invoices/submissions", body, headers)
	require.Equal(t, http.StatusAccepted, first.Code)

	second := f.do(t, http.MethodPost, "/api/v1/invoices/submissions", body, headers)
	require.Equal(t, http.StatusConflict, second.Code)
	require.Contains(t, second.Body.String(), "IDEMPOTENT_REPLAY")
	require.Equal(t, 1, f.enq.n)
}

func TestRouterLiquidationNotFound(t *testing.T) {
	f := newRouterFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/contracts/c-404/liquidation/preview", "", f.bearer(t, "user-1"))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
