package reconciliation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quantrail/riskcore/internal/errors"
	"github.com/quantrail/riskcore/internal/logger"
)

const (
	maxTickBackoff        = 5 * time.Minute
	consecutiveErrorLimit = 5
)

// Scheduler runs the reconciliation job on a recurring schedule. Supported
// intervals are hourly (on the hour), daily (at a configured time) and
// weekly (Mondays at the configured time); anything else falls back to daily.
type Scheduler struct {
	job       *Job
	interval  string
	timeOfDay string
	log       *logger.Logger

	baseBackoff time.Duration
	now         func() time.Time
}

// NewScheduler creates a scheduler for the job. timeOfDay is "HH:MM" and
// only applies to daily and weekly schedules.
func NewScheduler(job *Job, interval, timeOfDay string, log *logger.Logger) *Scheduler {
	switch interval {
	case "hourly", "daily", "weekly":
	default:
		if log != nil {
			log.Warning("Unknown reconciliation interval %q, falling back to daily", interval)
		}
		interval = "daily"
	}
	return &Scheduler{
		job:         job,
		interval:    interval,
		timeOfDay:   timeOfDay,
		log:         log,
		baseBackoff: time.Second,
		now:         time.Now,
	}
}

// Run blocks executing the job on schedule until the context is cancelled.
// Per-tick failures back off exponentially up to a cap; a run of consecutive
// failures beyond the budget is returned as a fatal error so the host
// process can restart or alert.
func (s *Scheduler) Run(ctx context.Context) error {
	consecutiveErrors := 0
	backoff := s.baseBackoff

	for {
		wait := s.nextRunIn(s.now())
		if s.log != nil {
			s.log.Info("Next reconciliation in %s", wait.Round(time.Second))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		status := s.job.RunReconciliation(ctx)
		if status.LastError != "" {
			consecutiveErrors++
			if consecutiveErrors >= consecutiveErrorLimit {
				return errors.NewFatalError("reconciliation", "scheduler",
					fmt.Sprintf("%d consecutive reconciliation failures, last: %s",
						consecutiveErrors, status.LastError))
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxTickBackoff {
				backoff = maxTickBackoff
			}
			continue
		}

		consecutiveErrors = 0
		backoff = s.baseBackoff
	}
}

// nextRunIn computes the wait until the next scheduled run
func (s *Scheduler) nextRunIn(now time.Time) time.Duration {
	switch s.interval {
	case "hourly":
		next := now.Truncate(time.Hour).Add(time.Hour)
		return next.Sub(now)

	case "weekly":
		hour, minute := s.parseTimeOfDay()
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		for next.Weekday() != time.Monday || !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next.Sub(now)

	default: // daily
		hour, minute := s.parseTimeOfDay()
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next.Sub(now)
	}
}

// parseTimeOfDay parses "HH:MM", defaulting to midnight on bad input
func (s *Scheduler) parseTimeOfDay() (hour, minute int) {
	parts := strings.SplitN(s.timeOfDay, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0
	}
	return h, m
}
