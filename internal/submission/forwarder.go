package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backoffice-pricing/internal/obs"
	"github.com/noah-isme/backoffice-pricing/internal/resilience"
)

// Forwarder posts queued envelopes to the back-office backend.
type Forwarder struct {
	BaseURL string
	HTTP    resilience.HTTPClient
	Logger  zerolog.Logger
}

// ProcessTask implements asynq.Handler. Client errors from the backend are
// final and skip asynq retries; everything else is retried.
func (f Forwarder) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var env Envelope
	if err := json.Unmarshal(task.Payload(), &env); err != nil {
		return fmt.Errorf("decode envelope: %v: %w", err, asynq.SkipRetry)
	}
	logger := f.Logger.With().
		Str("kind", string(env.Kind)).
		Str("idempotency_key", env.IdempotencyKey).
		Logger()

	ctx, span := obs.StartSpan(ctx, "submission.forward",
		attribute.String("pricing."+obs.FieldSubmissionKind, string(env.Kind)),
		attribute.String("submission.path", env.Path))
	start := time.Now()
	err := f.forward(ctx, env)
	obs.EndSpan(span, err)
	elapsed := obs.DurationMillis(time.Since(start))
	switch {
	case err == nil:
		obs.ObserveForward(string(env.Kind), "ok", elapsed)
		logger.Info().Float64("duration_ms", elapsed).Msg("submission_forwarded")
	case errors.Is(err, asynq.SkipRetry):
		obs.ObserveForward(string(env.Kind), "rejected", elapsed)
		logger.Error().Err(err).Msg("submission_rejected")
	default:
		obs.ObserveForward(string(env.Kind), "retry", elapsed)
		logger.Warn().Err(err).Msg("submission_forward_failed")
	}
	return err
}

func (f Forwarder) forward(ctx context.Context, env Envelope) error {
	base := strings.TrimRight(f.BaseURL, "/")
	if base == "" {
		return fmt.Errorf("submission base url not configured: %w", asynq.SkipRetry)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+env.Path, bytes.NewReader(env.Body))
	if err != nil {
		return fmt.Errorf("build request: %v: %w", err, asynq.SkipRetry)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", env.IdempotencyKey)
	if env.ActingUserID != "" {
		req.Header.Set("X-Acting-User", env.ActingUserID)
	}

	resp, err := f.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("post %s: %w", env.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusConflict {
		// already applied under this idempotency key
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("backend rejected %s with %s: %s: %w", env.Path, resp.Status, strings.TrimSpace(string(snippet)), asynq.SkipRetry)
	}
	return fmt.Errorf("backend returned %s for %s", resp.Status, env.Path)
}

// NewServeMux registers the forwarder for every submission kind.
func NewServeMux(f Forwarder) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(KindInvoice.TaskType(), f)
	mux.Handle(KindLiquidation.TaskType(), f)
	return mux
}

// RetryDelay backs off exponentially from base, capped at max.
func RetryDelay(base, max time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		if n > 20 {
			n = 20
		}
		d := resilience.Backoff(base, n+1, 0.2)
		if max > 0 && d > max {
			return max
		}
		return d
	}
}
