// Package health serves liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/backoffice-pricing/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles readiness; the API flips it off when draining for shutdown.
func SetReady(v bool) { ready.Store(v) }

// Check verifies one dependency.
type Check func(ctx context.Context) error

// Pinger is implemented by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger such as the Postgres pool.
func PingCheck(p Pinger) Check {
	return func(ctx context.Context) error { return p.Ping(ctx) }
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks  map[string]Check
	Timeout time.Duration
	// Circuits reports the breaker state of each outbound target. An open
	// breaker is listed but does not fail readiness.
	Circuits func() map[string]string
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready checks every dependency concurrently.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "draining"})
		return
	}
	if len(h.Checks) == 0 {
		common.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "dependencies unavailable"})
		return
	}

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
			defer cancel()
			results[i] = "ok"
			if err := check(ctx); err != nil {
				results[i] = err.Error()
			}
		}(i, h.Checks[name])
	}
	wg.Wait()

	checks := make(map[string]string, len(names))
	status, code := "ok", http.StatusOK
	for i, name := range names {
		checks[name] = results[i]
		if results[i] != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	body := map[string]any{"status": status, "checks": checks}
	if h.Circuits != nil {
		body["circuits"] = h.Circuits()
	}
	common.JSON(w, code, body)
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.Timeout
}
