package app

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backoffice-pricing/internal/auth"
	"github.com/noah-isme/backoffice-pricing/internal/catalog"
	"github.com/noah-isme/backoffice-pricing/internal/common"
	"github.com/noah-isme/backoffice-pricing/internal/config"
	"github.com/noah-isme/backoffice-pricing/internal/health"
	"github.com/noah-isme/backoffice-pricing/internal/invoice"
	"github.com/noah-isme/backoffice-pricing/internal/liquidation"
	"github.com/noah-isme/backoffice-pricing/internal/obs"
	"github.com/noah-isme/backoffice-pricing/internal/ratelimit"
	"github.com/noah-isme/backoffice-pricing/internal/security"
	"github.com/noah-isme/backoffice-pricing/internal/submission"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Services     *Services
	Verifier     *auth.Verifier
	Redis        *redis.Client
	LimiterStore limiter.Store
	HTTPMetrics  *obs.HTTPMetrics
	Gatherer     prometheus.Gatherer
	Checks       map[string]health.Check
	Circuits     func() map[string]string
}

// NewRouter builds the chi router of the API server.
func NewRouter(rc RouterConfig) (http.Handler, error) {
	cfg := rc.Config
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	r.Use(obs.TracingMiddleware("pricing-api"))
	if rc.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: rc.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: rc.Logger}.Middleware)
	r.Use(security.Headers{HSTSMaxAge: cfg.HSTSMaxAge, TrustProxy: cfg.TrustProxy}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if rc.Gatherer != nil {
		r.Handle("/metrics", obs.MetricsHandler(rc.Gatherer))
	}
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}

	healthHandler := health.Handler{Checks: rc.Checks, Circuits: rc.Circuits}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	perIP, err := ratelimit.PerIP(rc.LimiterStore, cfg.RateLimitPerIP)
	if err != nil {
		return nil, err
	}
	submitLimit := ratelimit.SubmissionLimit{
		Limiter: ratelimit.Limiter{Client: rc.Redis, Prefix: "pricing:ratelimit:submit:"},
		Budget:  ratelimit.Budget{Max: cfg.RateLimitSubmitPerUser, Window: cfg.RateLimitSubmitWindow},
		OnError: func(err error) {
			rc.Logger.Warn().Err(err).Msg("submission rate limiter unavailable")
		},
	}
	idem := common.Idem{R: rc.Redis, TTL: cfg.IdempotencyTTL}
	authMiddleware := auth.Middleware{Verifier: rc.Verifier}

	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: rc.Services.Catalog})
	invoiceHandler := invoice.NewHandler(invoice.HandlerConfig{Service: rc.Services.Invoice})
	liquidationHandler := liquidation.NewHandler(liquidation.HandlerConfig{Service: rc.Services.Liquidation})

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(perIP)
		v.Use(security.BodyLimit{Max: int64(cfg.MaxBodyBytes)}.Middleware)
		v.Use(authMiddleware.RequireAuth)

		v.Get("/products/{id}/unit-prices", catalogHandler.UnitPrices)
		v.Post("/unit-conversions/validate", catalogHandler.ValidateConversions)

		v.Post("/invoices/quote", invoiceHandler.Quote)
		v.With(submitLimit.For(string(submission.KindInvoice)), idem.Middleware).Post("/invoices/submissions", invoiceHandler.Submit)

		v.Route("/contracts/{contractID}/liquidation", func(c chi.Router) {
			c.Post("/preview", liquidationHandler.Preview)
			c.Group(func(g chi.Router) {
				g.Use(submitLimit.For(string(submission.KindLiquidation)), idem.Middleware)
				g.Post("/confirmation", liquidationHandler.Confirm)
				g.Post("/revert", liquidationHandler.Revert)
			})
		})
	})
	return r, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="pprof"`)
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized", nil)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
