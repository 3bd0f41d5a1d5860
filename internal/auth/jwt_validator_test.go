package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

func operatorToken(t *testing.T, now time.Time, edit func(*jwt.Builder) *jwt.Builder) jwt.Token {
	t.Helper()
	b := jwt.NewBuilder().
		Issuer("backoffice").
		Audience([]string{"pricing"}).
		Subject("operator-1").
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(time.Hour))
	if edit != nil {
		b = edit(b)
	}
	tok, err := b.Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	return tok
}

func operatorPolicy() TokenValidator {
	return TokenValidator{
		Issuer:      "backoffice",
		Audience:    "pricing",
		ClockSkew:   time.Second,
		Algorithm:   jwa.HS256,
		MaxLifetime: 8 * time.Hour,
	}
}

func TestTokenValidatorAcceptsOperatorToken(t *testing.T) {
	now := time.Now()
	if err := operatorPolicy().Validate(operatorToken(t, now, nil), jwa.HS256, now); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestTokenValidatorRejections(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name      string
		edit      func(*jwt.Builder) *jwt.Builder
		drop      string
		algorithm jwa.SignatureAlgorithm
		want      error
	}{
		{name: "foreign issuer", edit: func(b *jwt.Builder) *jwt.Builder { return b.Issuer("storefront") }},
		{name: "foreign audience", edit: func(b *jwt.Builder) *jwt.Builder { return b.Audience([]string{"orders"}) }},
		{name: "expired", edit: func(b *jwt.Builder) *jwt.Builder {
			return b.IssuedAt(now.Add(-2 * time.Hour)).NotBefore(now.Add(-2 * time.Hour)).Expiration(now.Add(-time.Minute))
		}},
		{name: "not yet valid", edit: func(b *jwt.Builder) *jwt.Builder { return b.NotBefore(now.Add(5 * time.Minute)) }},
		{name: "no expiry", drop: jwt.ExpirationKey},
		{name: "blank operator", edit: func(b *jwt.Builder) *jwt.Builder { return b.Subject(" ") }, want: ErrNoOperator},
		{name: "lifetime above policy", edit: func(b *jwt.Builder) *jwt.Builder { return b.Expiration(now.Add(24 * time.Hour)) }, want: ErrLifetime},
		{name: "other algorithm", algorithm: jwa.RS256, want: ErrAlgorithm},
		{name: "unsigned", algorithm: jwa.NoSignature, want: ErrAlgorithm},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alg := tc.algorithm
			if alg == "" {
				alg = jwa.HS256
			}
			tok := operatorToken(t, now, tc.edit)
			if tc.drop != "" {
				if err := tok.Remove(tc.drop); err != nil {
					t.Fatalf("remove %s: %v", tc.drop, err)
				}
			}
			err := operatorPolicy().Validate(tok, alg, now)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCheckLifetime(t *testing.T) {
	policy := operatorPolicy()
	if err := policy.CheckLifetime(8 * time.Hour); err != nil {
		t.Fatalf("lifetime at the limit: %v", err)
	}
	if err := policy.CheckLifetime(9 * time.Hour); !errors.Is(err, ErrLifetime) {
		t.Fatalf("expected ErrLifetime, got %v", err)
	}
	if err := (TokenValidator{}).CheckLifetime(1000 * time.Hour); err != nil {
		t.Fatalf("no policy: %v", err)
	}
}
