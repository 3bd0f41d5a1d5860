package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	// ErrAlgorithm rejects tokens not signed with the pinned algorithm.
	ErrAlgorithm = errors.New("auth: unexpected token algorithm")
	// ErrNoOperator rejects tokens that do not name an operator in sub.
	ErrNoOperator = errors.New("auth: token has no subject")
	// ErrLifetime rejects tokens whose exp - iat exceeds the policy.
	ErrLifetime = errors.New("auth: token lifetime exceeds policy")
)

// TokenValidator is the claims policy for back-office operator tokens.
// Every token must carry sub and exp.
type TokenValidator struct {
	Issuer      string
	Audience    string
	ClockSkew   time.Duration
	Algorithm   jwa.SignatureAlgorithm
	MaxLifetime time.Duration
}

// Validate checks tok, signed with algorithm, as of now.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if err := v.checkAlgorithm(algorithm); err != nil {
		return err
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithAcceptableSkew(v.ClockSkew),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
		jwt.WithRequiredClaim(jwt.SubjectKey),
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	if err := jwt.Validate(tok, options...); err != nil {
		return err
	}
	if tok.Expiration().IsZero() {
		return errors.New("auth: token has no expiry")
	}
	if strings.TrimSpace(tok.Subject()) == "" {
		return ErrNoOperator
	}
	return v.checkLifetime(tok, now)
}

// CheckLifetime reports whether a token valid for ttl would pass the policy.
func (v TokenValidator) CheckLifetime(ttl time.Duration) error {
	if v.MaxLifetime > 0 && ttl > v.MaxLifetime {
		return fmt.Errorf("%w: %s > %s", ErrLifetime, ttl, v.MaxLifetime)
	}
	return nil
}

func (v TokenValidator) checkLifetime(tok jwt.Token, now time.Time) error {
	issued := tok.IssuedAt()
	if issued.IsZero() {
		issued = now
	}
	return v.CheckLifetime(tok.Expiration().Sub(issued))
}

func (v TokenValidator) checkAlgorithm(algorithm jwa.SignatureAlgorithm) error {
	switch {
	case algorithm == "":
		return errors.New("auth: token missing algorithm")
	case algorithm == jwa.NoSignature:
		return fmt.Errorf("%w: none", ErrAlgorithm)
	case v.Algorithm != "" && algorithm != v.Algorithm:
		return fmt.Errorf("%w: %s", ErrAlgorithm, algorithm)
	}
	return nil
}

// headerAlgorithm reads the signing algorithm from the protected headers
// without verifying the signature. Tokens with several signatures must agree.
func headerAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if algorithm != "" && algorithm != alg {
			return "", errors.New("auth: mixed token algorithms")
		}
		algorithm = alg
	}
	return algorithm, nil
}
