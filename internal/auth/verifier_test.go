package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backoffice-pricing/internal/auth"
	"github.com/noah-isme/backoffice-pricing/internal/common"
)

func newVerifier(t *testing.T) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier(auth.Config{Secret: "test-secret", Issuer: "backoffice", Audience: "pricing"})
	require.NoError(t, err)
	return v
}

func TestVerifierRoundTrip(t *testing.T) {
	v := newVerifier(t)
	token, err := v.Issue("user-1", time.Minute)
	require.NoError(t, err)

	userID, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
}

func TestVerifierRejectsForeignSecret(t *testing.T) {
	other, err := auth.NewVerifier(auth.Config{Secret: "other", Issuer: "backoffice", Audience: "pricing"})
	require.NoError(t, err)
	token, err := other.Issue("user-1", time.Minute)
	require.NoError(t, err)

	_, err = newVerifier(t).Verify(token)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
}

func TestVerifierRejectsExpired(t *testing.T) {
	v := newVerifier(t)
	v.WithNow(func() time.Time { return time.Now().Add(-time.Hour) })
	token, err := v.Issue("user-1", time.Minute)
	require.NoError(t, err)

	v.WithNow(time.Now)
	_, err = v.Verify(token)
	require.Error(t, err)
}

func TestIssueRespectsLifetimePolicy(t *testing.T) {
	v, err := auth.NewVerifier(auth.Config{Secret: "test-secret", MaxTTL: time.Hour})
	require.NoError(t, err)

	_, err = v.Issue("user-1", 2*time.Hour)
	require.ErrorIs(t, err, auth.ErrLifetime)
	_, err = v.Issue(" ", time.Minute)
	require.ErrorIs(t, err, auth.ErrNoOperator)

	long, err := auth.NewVerifier(auth.Config{Secret: "test-secret", MaxTTL: 48 * time.Hour})
	require.NoError(t, err)
	token, err := long.Issue("user-1", 24*time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(token)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.ErrorIs(t, err, auth.ErrLifetime)
}

func TestRequireAuthSetsActingUser(t *testing.T) {
	v := newVerifier(t)
	token, err := v.Issue("user-42", time.Minute)
	require.NoError(t, err)

	var seen string
	handler := auth.Middleware{Verifier: v}.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = common.ActingUser(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/quote", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "user-42", seen)
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	handler := auth.Middleware{Verifier: newVerifier(t)}.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/p-1/unit-prices", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuthRejections(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "missing token"},
		{"basic scheme", "Basic dXNlcjpwYXNz", "unsupported authorization scheme"},
		{"empty bearer", "Bearer   ", "missing token"},
		{"garbage token", "Bearer not-a-jwt", "invalid token"},
	}
	handler := auth.Middleware{Verifier: newVerifier(t)}.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/submissions", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, http.StatusUnauthorized, rr.Code)
			require.Equal(t, `Bearer realm="pricing"`, rr.Header().Get("WWW-Authenticate"))
			require.Contains(t, rr.Body.String(), `"code":"UNAUTHORIZED"`)
			require.Contains(t, rr.Body.String(), tc.message)
		})
	}
}

func TestRequireAuthWithoutVerifier(t *testing.T) {
	handler := auth.Middleware{}.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/p-1/unit-prices", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
