package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/backoffice-pricing/internal/common"
)

// SubmissionLimit caps how often one operator can submit one kind of
// payload. Invoice submissions and liquidation changes draw from separate
// budgets.
type SubmissionLimit struct {
	Limiter Limiter
	Budget  Budget
	OnError func(error)
}

// Key identifies the budget for kind: the acting operator when known,
// otherwise the client address.
func Key(r *http.Request, kind string) string {
	if id, ok := common.ActingUser(r.Context()); ok {
		return kind + ":user:" + id
	}
	return kind + ":ip:" + common.ClientIP(r)
}

// For returns middleware enforcing the budget of kind. A limiter failure is
// reported to OnError and the request proceeds.
func (s SubmissionLimit) For(kind string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := s.Limiter.Allow(r.Context(), Key(r, kind), s.Budget)
			if err != nil {
				if s.OnError != nil {
					s.OnError(err)
				}
				next.ServeHTTP(w, r)
				return
			}
			headers := w.Header()
			headers.Set("X-RateLimit-Limit", strconv.Itoa(max(s.Budget.Max, 0)))
			headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if !d.Allowed {
				retryAfter := int(d.ResetAt.Sub(s.Limiter.now()).Round(time.Second).Seconds())
				headers.Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
				common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many "+kind+" submissions", map[string]any{"kind": kind})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
