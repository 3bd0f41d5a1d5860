package common

import (
	"context"
	"errors"
	"strings"
)

// ErrNoActingUser is returned when a write path runs without an operator.
var ErrNoActingUser = errors.New("no acting user on request")

type actingUserKey struct{}

// WithActingUser records the operator on whose behalf drafts and contracts
// are changed. A blank id leaves ctx untouched.
func WithActingUser(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actingUserKey{}, userID)
}

// ActingUser returns the operator recorded by WithActingUser.
func ActingUser(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(actingUserKey{}).(string)
	return id, ok
}

// RequireActingUser is ActingUser for submissions, where the operator ends
// up in the payload and in the self-beneficiary check.
func RequireActingUser(ctx context.Context) (string, error) {
	id, ok := ActingUser(ctx)
	if !ok {
		return "", Unauthorized("acting user required", ErrNoActingUser)
	}
	return id, nil
}
