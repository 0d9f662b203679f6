package reconciliation

import (
	"context"
	"time"
)

// Result is the outcome of one reconciliation pass against the executor
type Result struct {
	TotalOrders        int      `json:"total_orders"`
	MatchedOrders      int      `json:"matched_orders"`
	MismatchedOrders   int      `json:"mismatched_orders"`
	MissingOrders      []string `json:"missing_orders"`
	ExtraOrders        []string `json:"extra_orders"`
	MismatchPercentage float64  `json:"mismatch_percentage"`
	AlertTriggered     bool     `json:"alert_triggered"`
	TimePeriod         string   `json:"time_period"`

	// set when the run failed instead of producing a comparison
	Error         string `json:"error,omitempty"`
	ErrorCategory string `json:"error_category,omitempty"`
}

// Report wraps a result with the time it was produced. Reports are persisted
// as a JSON array and pruned by age on every save.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Result    Result    `json:"result"`
}

// Thresholds configure when discrepancies escalate to alerts
type Thresholds struct {
	MismatchPercentage float64
	MissingOrders      int
	ExtraOrders        int
}

// Source is the order executor being reconciled against. Implemented by the
// exchange integration, mocked in tests.
type Source interface {
	ReconcileOrders(ctx context.Context, period string) (*Result, error)
}
