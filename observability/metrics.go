package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics tracks engine operation throughput, failures, and market
// gauges for Prometheus scraping.
type LendingMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations *prometheus.CounterVec
	borrowIndex  *prometheus.GaugeVec
	borrowRate   *prometheus.GaugeVec
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// Lending returns the lazily-initialised lending metrics registry.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dlend",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations segmented by operation, pool, and outcome.",
			}, []string{"op", "pool", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dlend",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dlend",
				Subsystem: "engine",
				Name:      "liquidations_total",
				Help:      "Completed liquidations segmented by debt and collateral pool.",
			}, []string{"debt_pool", "collateral_pool"}),
			borrowIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "dlend",
				Subsystem: "market",
				Name:      "borrow_index",
				Help:      "Current cumulative borrow index per pool, 1e18 scaled.",
			}, []string{"pool"}),
			borrowRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "dlend",
				Subsystem: "market",
				Name:      "borrow_rate_per_second",
				Help:      "Current per-second borrow rate per pool, 1e18 scaled.",
			}, []string{"pool"}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.latency,
			lendingRegistry.liquidations,
			lendingRegistry.borrowIndex,
			lendingRegistry.borrowRate,
		)
	})
	return lendingRegistry
}

func normalizeLabel(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

// RecordOperation counts one engine call and observes its latency.
func (m *LendingMetrics) RecordOperation(op, pool string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	op = normalizeLabel(op, "unknown")
	m.operations.WithLabelValues(op, normalizeLabel(pool, "unknown"), outcome).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordLiquidation counts a completed liquidation.
func (m *LendingMetrics) RecordLiquidation(debtPool, collateralPool string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(
		normalizeLabel(debtPool, "unknown"),
		normalizeLabel(collateralPool, "unknown"),
	).Inc()
}

// SetMarketGauges publishes the pool's current index and rate. Values are
// float approximations; exact figures live in state.
func (m *LendingMetrics) SetMarketGauges(pool string, borrowIndex, borrowRatePerSec float64) {
	if m == nil {
		return
	}
	pool = normalizeLabel(pool, "unknown")
	m.borrowIndex.WithLabelValues(pool).Set(borrowIndex)
	m.borrowRate.WithLabelValues(pool).Set(borrowRatePerSec)
}
