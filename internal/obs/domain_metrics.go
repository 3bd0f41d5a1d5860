package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuotesTotal counts invoice quote computations by result (ok, invalid).
	QuotesTotal *prometheus.CounterVec
	// LiquidationPreviewsTotal counts settlement previews by direction.
	LiquidationPreviewsTotal *prometheus.CounterVec
	// SubmissionsEnqueuedTotal counts submissions handed to the queue by kind and result.
	SubmissionsEnqueuedTotal *prometheus.CounterVec
	// MarketPriceLookupsTotal counts market price reads by source (cache, upstream, error).
	MarketPriceLookupsTotal *prometheus.CounterVec
	// SubmissionForwardLatency records forwarding latency of queued submissions in milliseconds.
	SubmissionForwardLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_quotes_total",
			Help:      "Count of invoice quote computations by outcome.",
		}, []string{"result"})
		LiquidationPreviewsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liquidation_previews_total",
			Help:      "Count of liquidation previews by settlement direction.",
		}, []string{"direction"})
		SubmissionsEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_enqueued_total",
			Help:      "Count of submissions handed to the queue.",
		}, []string{"kind", "result"})
		MarketPriceLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "market_price_lookups_total",
			Help:      "Count of market price lookups by source.",
		}, []string{"source"})
		SubmissionForwardLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_forward_duration_ms",
			Help:      "Latency for forwarding queued submissions in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"kind", "result"})

		QuotesTotal = registerOrReuse(reg, QuotesTotal)
		LiquidationPreviewsTotal = registerOrReuse(reg, LiquidationPreviewsTotal)
		SubmissionsEnqueuedTotal = registerOrReuse(reg, SubmissionsEnqueuedTotal)
		MarketPriceLookupsTotal = registerOrReuse(reg, MarketPriceLookupsTotal)
		SubmissionForwardLatency = registerOrReuse(reg, SubmissionForwardLatency)
	})
}

// CountQuote increments the quote counter when domain metrics are registered.
func CountQuote(result string) {
	if QuotesTotal != nil {
		QuotesTotal.WithLabelValues(result).Inc()
	}
}

// CountLiquidationPreview increments the preview counter for direction.
func CountLiquidationPreview(direction string) {
	if LiquidationPreviewsTotal != nil {
		LiquidationPreviewsTotal.WithLabelValues(direction).Inc()
	}
}

// CountSubmission increments the enqueue counter.
func CountSubmission(kind, result string) {
	if SubmissionsEnqueuedTotal != nil {
		SubmissionsEnqueuedTotal.WithLabelValues(kind, result).Inc()
	}
}

// CountMarketLookup increments the market price lookup counter.
func CountMarketLookup(source string) {
	if MarketPriceLookupsTotal != nil {
		MarketPriceLookupsTotal.WithLabelValues(source).Inc()
	}
}

// ObserveForward records a forwarding attempt latency in milliseconds.
func ObserveForward(kind, result string, ms float64) {
	if SubmissionForwardLatency != nil {
		SubmissionForwardLatency.WithLabelValues(kind, result).Observe(ms)
	}
}
