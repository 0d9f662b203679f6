package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSink receives counter and gauge updates from the risk core.
// Implementations must be fire-and-forget: no errors, no blocking.
type MetricsSink interface {
	RecordOrderPlaced(symbol, side string, notional float64)
	RecordOrderSimulated(symbol, side string)
	RecordOrderRejected(symbol, stage string)
	RecordTrade(symbol, side string)
	RecordError(errorType string)
	RecordReconciliation(severity string)
	UpdatePrice(symbol string, price float64)
	SetEquity(equity float64)
	SetExposure(total float64)
	SetDrawdown(current, max float64)
	SetHalted(halted bool)
	SetCircuitBreaker(symbol string, triggered bool)
}

var (
	// Order flow metrics
	ordersPlacedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskcore_orders_placed_total",
			Help: "Total number of orders submitted to the exchange",
		},
		[]string{"symbol", "side"},
	)

	ordersSimulatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskcore_orders_simulated_total",
			Help: "Total number of orders short-circuited by dry-run mode",
		},
		[]string{"symbol", "side"},
	)

	ordersRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskcore_orders_rejected_total",
			Help: "Total number of rejected orders by rejection stage",
		},
		[]string{"symbol", "stage"},
	)

	orderNotional = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskcore_order_notional",
			Help:    "Distribution of placed order notional values",
			Buckets: prometheus.ExponentialBuckets(10, 10, 6),
		},
		[]string{"symbol"},
	)

	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskcore_trades_total",
			Help: "Total number of filled trades",
		},
		[]string{"symbol", "side"},
	)

	// Market data metrics
	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "riskcore_current_price",
			Help: "Last observed price per symbol",
		},
		[]string{"symbol"},
	)

	// Risk state metrics
	accountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskcore_account_equity",
			Help: "Current account equity",
		},
	)

	totalExposure = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskcore_total_exposure",
			Help: "Summed market value of open positions",
		},
	)

	currentDrawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskcore_current_drawdown",
			Help: "Peak-to-current equity drawdown fraction",
		},
	)

	maxDrawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskcore_max_drawdown",
			Help: "Maximum observed drawdown fraction",
		},
	)

	tradingHalted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskcore_trading_halted",
			Help: "1 when trading is halted, 0 otherwise",
		},
	)

	circuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "riskcore_circuit_breaker_triggered",
			Help: "1 when the symbol's circuit breaker is triggered",
		},
		[]string{"symbol"},
	)

	// Error and reconciliation metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskcore_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type"},
	)

	reconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskcore_reconciliations_total",
			Help: "Total number of reconciliation runs by severity",
		},
		[]string{"severity"},
	)
)

func init() {
	prometheus.MustRegister(ordersPlacedTotal)
	prometheus.MustRegister(ordersSimulatedTotal)
	prometheus.MustRegister(ordersRejectedTotal)
	prometheus.MustRegister(orderNotional)
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(accountEquity)
	prometheus.MustRegister(totalExposure)
	prometheus.MustRegister(currentDrawdown)
	prometheus.MustRegister(maxDrawdown)
	prometheus.MustRegister(tradingHalted)
	prometheus.MustRegister(circuitBreakerState)
	prometheus.MustRegister(errorsTotal)
	prometheus.MustRegister(reconciliationsTotal)
}

// PrometheusSink publishes metrics through the process-wide Prometheus registry
type PrometheusSink struct{}

// NewPrometheusSink creates a Prometheus-backed metrics sink
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{}
}

func (p *PrometheusSink) RecordOrderPlaced(symbol, side string, notional float64) {
	ordersPlacedTotal.WithLabelValues(symbol, side).Inc()
	orderNotional.WithLabelValues(symbol).Observe(notional)
}

func (p *PrometheusSink) RecordOrderSimulated(symbol, side string) {
	ordersSimulatedTotal.WithLabelValues(symbol, side).Inc()
}

func (p *PrometheusSink) RecordOrderRejected(symbol, stage string) {
	ordersRejectedTotal.WithLabelValues(symbol, stage).Inc()
}

func (p *PrometheusSink) RecordTrade(symbol, side string) {
	tradesTotal.WithLabelValues(symbol, side).Inc()
}

func (p *PrometheusSink) RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}

func (p *PrometheusSink) RecordReconciliation(severity string) {
	reconciliationsTotal.WithLabelValues(severity).Inc()
}

func (p *PrometheusSink) UpdatePrice(symbol string, price float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
}

func (p *PrometheusSink) SetEquity(equity float64) {
	accountEquity.Set(equity)
}

func (p *PrometheusSink) SetExposure(total float64) {
	totalExposure.Set(total)
}

func (p *PrometheusSink) SetDrawdown(current, max float64) {
	currentDrawdown.Set(current)
	maxDrawdown.Set(max)
}

func (p *PrometheusSink) SetHalted(halted bool) {
	if halted {
		tradingHalted.Set(1)
	} else {
		tradingHalted.Set(0)
	}
}

func (p *PrometheusSink) SetCircuitBreaker(symbol string, triggered bool) {
	if triggered {
		circuitBreakerState.WithLabelValues(symbol).Set(1)
	} else {
		circuitBreakerState.WithLabelValues(symbol).Set(0)
	}
}

// NoopSink discards all metrics. Used in tests and when monitoring is disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (NoopSink) RecordOrderPlaced(string, string, float64) {}
func (NoopSink) RecordOrderSimulated(string, string)       {}
func (NoopSink) RecordOrderRejected(string, string)        {}
func (NoopSink) RecordTrade(string, string)                {}
func (NoopSink) RecordError(string)                        {}
func (NoopSink) RecordReconciliation(string)               {}
func (NoopSink) UpdatePrice(string, float64)               {}
func (NoopSink) SetEquity(float64)                         {}
func (NoopSink) SetExposure(float64)                       {}
func (NoopSink) SetDrawdown(float64, float64)              {}
func (NoopSink) SetHalted(bool)                            {}
func (NoopSink) SetCircuitBreaker(string, bool)            {}

// MetricsHandler serves the Prometheus scrape endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}
