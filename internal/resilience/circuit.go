package resilience

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cooldown expires.
	Open
	// HalfOpen lets a bounded number of trial requests through.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Policy configures the breaker of one outbound target.
type Policy struct {
	// MinSamples is the number of outcomes inside Window before the failure
	// ratio is evaluated.
	MinSamples   int
	FailureRatio float64
	// Window bounds how long outcomes count towards the ratio.
	Window   time.Duration
	Cooldown time.Duration
	// HalfOpenTrials successful trials close the breaker again.
	HalfOpenTrials int
}

func (p Policy) normalized() Policy {
	if p.MinSamples <= 0 {
		p.MinSamples = 1
	}
	if p.FailureRatio <= 0 {
		p.FailureRatio = 0.5
	}
	if p.FailureRatio > 1 {
		p.FailureRatio = 1
	}
	if p.Window <= 0 {
		p.Window = 30 * time.Second
	}
	if p.Cooldown <= 0 {
		p.Cooldown = 30 * time.Second
	}
	if p.HalfOpenTrials <= 0 {
		p.HalfOpenTrials = 1
	}
	return p
}

// Breaker is a failure-ratio circuit breaker guarding one target.
type Breaker struct {
	mu          sync.Mutex
	target      string
	policy      Policy
	state       State
	failures    int
	successes   int
	windowStart time.Time
	openedAt    time.Time
	inFlight    int
	now         func() time.Time
	logger      zerolog.Logger
}

// NewBreaker builds the breaker of target. Zero policy fields take defaults.
func NewBreaker(target string, p Policy) *Breaker {
	target = strings.TrimSpace(target)
	if target == "" {
		target = "default"
	}
	b := &Breaker{
		target: target,
		policy: p.normalized(),
		state:  Closed,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	b.recordStateLocked()
	return b
}

// WithLogger configures the logger used for transition events.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// WithClock replaces the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now != nil {
		b.now = now
	}
	return b
}

// Target names the dependency the breaker guards.
func (b *Breaker) Target() string { return b.target }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request may go out. After the cooldown an open
// breaker turns half-open and admits up to HalfOpenTrials concurrent trials.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.policy.Cooldown {
			b.recordRejectLocked()
			return false
		}
		b.changeStateLocked(ctx, HalfOpen)
		b.inFlight = 1
		return true
	case HalfOpen:
		if b.inFlight >= b.policy.HalfOpenTrials {
			b.recordRejectLocked()
			return false
		}
		b.inFlight++
		return true
	default:
		return true
	}
}

// Report records the outcome of a request allowed by Allow.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if b.inFlight > 0 {
			b.inFlight--
		}
		if !success {
			b.changeStateLocked(ctx, Open)
			return
		}
		b.successes++
		if b.successes >= b.policy.HalfOpenTrials {
			b.changeStateLocked(ctx, Closed)
		}
		return
	}

	now := b.now()
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= b.policy.Window {
		b.windowStart = now
		b.failures = 0
		b.successes = 0
	}
	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	if total < b.policy.MinSamples {
		return
	}
	if float64(b.failures)/float64(total) >= b.policy.FailureRatio {
		b.changeStateLocked(ctx, Open)
	}
}

// Breakers hands out one breaker per outbound target, each configured by
// its own policy.
type Breakers struct {
	mu       sync.Mutex
	fallback Policy
	policies map[string]Policy
	byTarget map[string]*Breaker
	logger   zerolog.Logger
}

// NewBreakers builds a registry. Targets missing from policies use fallback.
func NewBreakers(fallback Policy, policies map[string]Policy, logger zerolog.Logger) *Breakers {
	copied := make(map[string]Policy, len(policies))
	for target, p := range policies {
		copied[strings.TrimSpace(target)] = p
	}
	return &Breakers{
		fallback: fallback,
		policies: copied,
		byTarget: map[string]*Breaker{},
		logger:   logger,
	}
}

// For returns the breaker of target, creating it on first use.
func (r *Breakers) For(target string) *Breaker {
	target = strings.TrimSpace(target)
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byTarget[target]; ok {
		return b
	}
	p, ok := r.policies[target]
	if !ok {
		p = r.fallback
	}
	b := NewBreaker(target, p).WithLogger(r.logger)
	r.byTarget[target] = b
	return b
}

// Snapshot returns the state of every breaker handed out so far.
func (r *Breakers) Snapshot() map[string]string {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.byTarget))
	for _, b := range r.byTarget {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()
	out := make(map[string]string, len(breakers))
	for _, b := range breakers {
		out[b.target] = b.State().String()
	}
	return out
}

// Backoff returns an exponential backoff duration for the provided attempt.
// Jitter is expressed as a fraction (e.g. 0.2 == 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	jitter := float64(d) * jitterPct
	delta := (rand.Float64()*2 - 1) * jitter
	return d + time.Duration(delta)
}

func (b *Breaker) changeStateLocked(ctx context.Context, next State) {
	prev := b.state
	b.state = next
	b.failures = 0
	b.successes = 0
	b.inFlight = 0
	b.windowStart = time.Time{}
	switch next {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.recordStateLocked()
	if prev != next {
		b.recordTransition(ctx, prev, next)
	}
}

func (b *Breaker) recordStateLocked() {
	if BreakerState == nil {
		return
	}
	BreakerState.WithLabelValues(b.target).Set(stateGaugeValue(b.state))
}

func (b *Breaker) recordRejectLocked() {
	if BreakerRejectedTotal != nil {
		BreakerRejectedTotal.WithLabelValues(b.target, b.state.String()).Inc()
	}
}

func (b *Breaker) recordTransition(ctx context.Context, from, to State) {
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.target, from.String(), to.String()).Inc()
	}
	if to == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(b.target).Inc()
	}
	logger := b.logger
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger.GetLevel() != zerolog.Disabled {
		logger = *ctxLogger
	}
	level := zerolog.InfoLevel
	if to == Open {
		level = zerolog.WarnLevel
	}
	evt := logger.WithLevel(level).
		Str("target", b.target).
		Str("from_state", from.String()).
		Str("to_state", to.String())
	if to == Open {
		evt = evt.Dur("cooldown", b.policy.Cooldown)
	}
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func stateGaugeValue(state State) float64 {
	switch state {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}
