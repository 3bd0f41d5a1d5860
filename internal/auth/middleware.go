package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/backoffice-pricing/internal/common"
	"github.com/noah-isme/backoffice-pricing/internal/obs"
)

var (
	errNoVerifier = errors.New("auth: verifier not configured")
	errScheme     = errors.New("auth: authorization scheme is not bearer")
)

// Middleware authenticates operators from their bearer token.
type Middleware struct {
	Verifier *Verifier
}

// RequireAuth rejects requests without a valid operator token. Accepted
// requests carry the operator as the acting user, on the context and in
// the request's log and span fields.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator, err := m.operator(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="pricing"`)
			common.WriteError(w, err)
			return
		}
		obs.Annotate(r.Context(), obs.FieldActingUser, operator)
		next.ServeHTTP(w, r.WithContext(common.WithActingUser(r.Context(), operator)))
	})
}

func (m Middleware) operator(r *http.Request) (string, error) {
	if m.Verifier == nil {
		return "", unauthorized("authentication unavailable", errNoVerifier)
	}
	token, err := bearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return "", err
	}
	return m.Verifier.Verify(token)
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", unauthorized("missing token", nil)
	}
	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "bearer") {
		return "", unauthorized("unsupported authorization scheme", errScheme)
	}
	return token, nil
}
