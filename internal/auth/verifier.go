package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backoffice-pricing/internal/common"
)

// Verifier checks bearer tokens minted by the back-office identity provider
// and resolves the acting user.
type Verifier struct {
	secret    []byte
	validator TokenValidator
	now       func() time.Time
}

// Config configures the verifier.
type Config struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	// MaxTTL bounds exp - iat of accepted and issued tokens. Zero means 12h.
	MaxTTL time.Duration
}

// NewVerifier builds an HS256 verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: secret is required")
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 30 * time.Second
	}
	maxTTL := cfg.MaxTTL
	if maxTTL <= 0 {
		maxTTL = 12 * time.Hour
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		validator: TokenValidator{
			Issuer:      cfg.Issuer,
			Audience:    cfg.Audience,
			ClockSkew:   skew,
			Algorithm:   jwa.HS256,
			MaxLifetime: maxTTL,
		},
		now: time.Now,
	}, nil
}

// WithNow overrides the clock used for validation.
func (v *Verifier) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// Verify validates an access token and returns its subject (user ID).
func (v *Verifier) Verify(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", unauthorized("missing token", nil)
	}
	algorithm, err := headerAlgorithm(trimmed)
	if err != nil {
		return "", unauthorized("invalid token", err)
	}
	if err := v.validator.checkAlgorithm(algorithm); err != nil {
		return "", unauthorized("invalid token", err)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return "", unauthorized("invalid token", err)
	}
	if err := v.validator.Validate(parsed, algorithm, v.now()); err != nil {
		return "", unauthorized("invalid token", err)
	}
	return strings.TrimSpace(parsed.Subject()), nil
}

// Issue signs a token for userID. The API never issues tokens itself; this
// backs the operator CLI and tests.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if strings.TrimSpace(userID) == "" {
		return "", ErrNoOperator
	}
	if err := v.validator.CheckLifetime(ttl); err != nil {
		return "", err
	}
	now := v.now()
	builder := jwt.NewBuilder().
		Subject(userID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if v.validator.Issuer != "" {
		builder = builder.Issuer(v.validator.Issuer)
	}
	if v.validator.Audience != "" {
		builder = builder.Audience([]string{v.validator.Audience})
	}
	token, err := builder.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, v.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func unauthorized(message string, err error) *common.AppError {
	return common.Unauthorized(message, err)
}
