package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrBusy is returned when the lock is still held after the wait budget.
	ErrBusy = errors.New("lock: resource is busy")
	// ErrLeaseLost means the lock expired or changed owner while the
	// callback ran; the callback context is cancelled with this cause.
	ErrLeaseLost = errors.New("lock: lease lost")
)

var waitHistogram, _ = otel.Meter("lock").Float64Histogram(
	"lock.wait.duration",
	metric.WithUnit("ms"),
	metric.WithDescription("Time spent waiting to acquire a contract lock."),
)

var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)
	extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

// Locker serialises work on one key through Redis. While the callback runs
// the lease is renewed every third of its TTL.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	// MaxWait bounds how long WithLock polls before giving up with ErrBusy.
	// Zero waits until the context ends.
	MaxWait time.Duration
}

// ContractKey is the lock key serialising status changes of one contract.
func ContractKey(contractID string) string {
	return "lock:contract:" + strings.TrimSpace(contractID)
}

// WithLock runs fn while holding key. If the lease is lost before fn
// returns, fn's context is cancelled and a failing fn's error wraps
// ErrLeaseLost.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	stop := l.keepAlive(leaseCtx, cancel, key, token, ttl)
	defer func() {
		stop()
		cancel(nil)
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.R, []string{key}, token).Err()
	}()

	err := fn(leaseCtx)
	if err != nil && errors.Is(context.Cause(leaseCtx), ErrLeaseLost) {
		return fmt.Errorf("%w: %w", ErrLeaseLost, err)
	}
	return err
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	start := time.Now()
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			l.observeWait(ctx, start, "acquired")
			return nil
		}
		if l.MaxWait > 0 && time.Since(start) > l.MaxWait {
			l.observeWait(ctx, start, "busy")
			return ErrBusy
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// keepAlive renews the lease until stop is called. A renewal that finds
// another owner cancels ctx with ErrLeaseLost; Redis errors are retried on
// the next tick.
func (l Locker) keepAlive(ctx context.Context, lost context.CancelCauseFunc, key, token string, ttl time.Duration) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := extendScript.Run(ctx, l.R, []string{key}, token, ttl.Milliseconds()).Int()
				if err == nil && n == 0 {
					lost(ErrLeaseLost)
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func (l Locker) observeWait(ctx context.Context, start time.Time, result string) {
	if waitHistogram == nil {
		return
	}
	ms := float64(time.Since(start)) / float64(time.Millisecond)
	waitHistogram.Record(ctx, ms, metric.WithAttributes(attribute.String("result", result)))
}
