package reconciliation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantrail/riskcore/internal/errors"
	"github.com/quantrail/riskcore/internal/logger"
	"github.com/quantrail/riskcore/internal/monitoring"
	"github.com/quantrail/riskcore/internal/notifications"
)

const defaultRunTimeout = 2 * time.Minute

// RunStatus summarizes the last reconciliation run for dashboards
type RunStatus struct {
	LastRun      time.Time `json:"last_run"`
	LastSeverity string    `json:"last_severity"`
	LastResult   *Result   `json:"last_result,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// Job runs order reconciliation against the executor, persists each report
// and escalates discrepancies through the alert sink.
type Job struct {
	source     Source
	store      *Store
	notifier   notifications.Notifier
	metrics    monitoring.MetricsSink
	log        *logger.Logger
	thresholds Thresholds
	period     string
	timeout    time.Duration
	health     *monitoring.HealthChecker

	mu     sync.RWMutex
	status RunStatus
}

// NewJob creates a reconciliation job for the given period
func NewJob(source Source, store *Store, notifier notifications.Notifier, metrics monitoring.MetricsSink, log *logger.Logger, thresholds Thresholds, period string) *Job {
	if metrics == nil {
		metrics = monitoring.NewNoopSink()
	}
	return &Job{
		source:     source,
		store:      store,
		notifier:   notifier,
		metrics:    metrics,
		log:        log,
		thresholds: thresholds,
		period:     period,
		timeout:    defaultRunTimeout,
	}
}

// RunReconciliation executes one reconciliation pass. Failures are recorded
// as structured failure reports and alerted; they never propagate to the
// scheduler as panics or unclassified errors.
// SetHealth records each run's completion time in the health report
func (j *Job) SetHealth(h *monitoring.HealthChecker) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.health = h
}

func (j *Job) RunReconciliation(ctx context.Context) RunStatus {
	runCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	defer func() {
		j.mu.RLock()
		health := j.health
		j.mu.RUnlock()
		if health != nil {
			health.RecordReconciliation()
		}
	}()

	result, err := j.source.ReconcileOrders(runCtx, j.period)
	if err == nil && result == nil {
		err = errors.NewValidationError("reconciliation", "reconcile_orders", "executor returned no result")
	}

	now := time.Now()
	status := RunStatus{LastRun: now}

	if err != nil {
		category := errors.Categorize(err, "reconciliation", "reconcile_orders").Category
		if runCtx.Err() == context.DeadlineExceeded {
			category = errors.ErrorCategoryTimeout
		}

		failure := &Result{
			TimePeriod:    j.period,
			Error:         err.Error(),
			ErrorCategory: string(category),
		}
		status.LastResult = failure
		status.LastError = err.Error()
		status.LastSeverity = notifications.LevelError

		if j.log != nil {
			j.log.LogError("reconciliation run", err)
		}
		j.metrics.RecordError("reconciliation_" + string(category))

		j.persist(Report{Timestamp: now, Result: *failure})
		j.alert("Reconciliation Failed",
			fmt.Sprintf("Reconciliation for period %q failed: %v", j.period, err),
			notifications.LevelError,
			map[string]interface{}{"category": string(category)})

		j.setStatus(status)
		return status
	}

	status.LastResult = result
	severity := notifications.LevelInfo
	if result.AlertTriggered {
		severity = DetermineAlertSeverity(result, j.thresholds)
	}
	status.LastSeverity = severity

	j.persist(Report{Timestamp: now, Result: *result})
	j.metrics.RecordReconciliation(severity)

	if j.log != nil {
		j.log.Info("Reconciliation complete: %d orders, %d mismatched, %d missing, %d extra, severity=%s",
			result.TotalOrders, result.MismatchedOrders, len(result.MissingOrders), len(result.ExtraOrders), severity)
	}

	if result.AlertTriggered {
		j.alert("Order Reconciliation Discrepancy",
			fmt.Sprintf("Found %d mismatched, %d missing and %d extra orders out of %d (%.2f%% mismatch)",
				result.MismatchedOrders, len(result.MissingOrders), len(result.ExtraOrders),
				result.TotalOrders, result.MismatchPercentage*100),
			severity,
			map[string]interface{}{
				"period":         j.period,
				"total_orders":   result.TotalOrders,
				"mismatched":     result.MismatchedOrders,
				"missing_orders": len(result.MissingOrders),
				"extra_orders":   len(result.ExtraOrders),
				"mismatch_pct":   result.MismatchPercentage,
			})
	}

	j.setStatus(status)
	return status
}

// Status returns the outcome of the most recent run
func (j *Job) Status() RunStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *Job) setStatus(status RunStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
}

func (j *Job) persist(report Report) {
	if j.store == nil {
		return
	}
	if err := j.store.Save(report); err != nil {
		if j.log != nil {
			j.log.LogError("persist reconciliation report", err)
		}
		j.metrics.RecordError("reconciliation_persist")
	}
}

// alert dispatches fire-and-forget; sink errors are logged, never returned
func (j *Job) alert(title, message, level string, data map[string]interface{}) {
	if j.notifier == nil {
		return
	}
	if err := j.notifier.SendAlert(title, message, level, data); err != nil {
		if j.log != nil {
			j.log.Warning("Alert dispatch failed: %v", err)
		}
		j.metrics.RecordError("alert_dispatch")
	}
}
