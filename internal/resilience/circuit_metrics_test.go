package resilience_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backoffice-pricing/internal/resilience"
)

func TestBreakerMetricsArePerTarget(t *testing.T) {
	resilience.BreakerState.Reset()
	resilience.BreakerTransitions.Reset()
	resilience.BreakerOpenedTotal.Reset()
	resilience.BreakerRejectedTotal.Reset()

	clk := newClock()
	var logs bytes.Buffer
	breakers := resilience.NewBreakers(resilience.Policy{MinSamples: 1, Cooldown: 20 * time.Millisecond}, nil, zerolog.New(&logs))
	market := breakers.For("market-price").WithClock(clk.Now)
	forward := breakers.For("submission-forward")
	ctx := context.Background()

	require.True(t, market.Allow(ctx))
	market.Report(ctx, false)

	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues("market-price")))
	require.Equal(t, 0.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues("submission-forward")))
	require.True(t, forward.Allow(ctx))

	require.False(t, market.Allow(ctx))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerRejectedTotal.WithLabelValues("market-price", "open")))

	clk.Advance(20 * time.Millisecond)
	require.True(t, market.Allow(ctx))
	require.Equal(t, 2.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues("market-price")))

	market.Report(ctx, true)
	require.Equal(t, 0.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues("market-price")))

	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues("market-price")))
	require.Equal(t, 0.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues("submission-forward")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("market-price", "closed", "open")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("market-price", "open", "half_open")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("market-price", "half_open", "closed")))

	require.Contains(t, logs.String(), `"level":"warn","target":"market-price","from_state":"closed","to_state":"open"`)
}
