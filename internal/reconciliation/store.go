package reconciliation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/quantrail/riskcore/internal/errors"
	"github.com/quantrail/riskcore/internal/logger"
)

const (
	saveRetries        = 3
	saveInitialBackoff = 100 * time.Millisecond
)

// Store persists reconciliation reports as a JSON array in a single file.
// The job is the only writer; external readers get eventually consistent
// snapshots with no file locking.
type Store struct {
	path        string
	historyDays int
	log         *logger.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// NewStore creates a report store at the given path with a rolling retention
// window in days.
func NewStore(path string, historyDays int, log *logger.Logger) *Store {
	return &Store{
		path:        path,
		historyDays: historyDays,
		log:         log,
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// Save appends a report and prunes entries older than the retention window.
// File I/O is retried with exponential backoff; after exhausting the retries
// the error is returned, never panicked.
func (s *Store) Save(report Report) error {
	var lastErr error
	backoff := saveInitialBackoff

	for attempt := 1; attempt <= saveRetries; attempt++ {
		if err := s.saveOnce(report); err != nil {
			lastErr = err
			if s.log != nil {
				s.log.Warning("Report save attempt %d/%d failed: %v", attempt, saveRetries, err)
			}
			if attempt < saveRetries {
				s.sleep(backoff)
				backoff *= 2
			}
			continue
		}
		return nil
	}

	if os.IsPermission(lastErr) {
		return errors.Wrap(lastErr, errors.ErrorCategoryFatal, "reconciliation", "save_report")
	}
	return errors.Wrap(lastErr, errors.ErrorCategoryTemporary, "reconciliation", "save_report")
}

func (s *Store) saveOnce(report Report) error {
	reports := s.loadLenient()
	reports = append(reports, report)
	reports = s.prune(reports)

	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Load returns all retained reports. A missing file is an empty history.
func (s *Store) Load() ([]Report, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrorCategoryTemporary, "reconciliation", "load_reports")
	}

	var reports []Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, errors.Wrap(err, errors.ErrorCategoryValidation, "reconciliation", "load_reports")
	}
	return reports, nil
}

// loadLenient reads the existing history for a read-modify-write cycle.
// Corrupt or non-array content is treated as an empty history rather than a
// fatal condition, so one bad write cannot wedge the job forever.
func (s *Store) loadLenient() []Report {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}

	var reports []Report
	if err := json.Unmarshal(data, &reports); err != nil {
		if s.log != nil {
			s.log.Warning("Report file %s is corrupt, starting fresh: %v", s.path, err)
		}
		return nil
	}
	return reports
}

func (s *Store) prune(reports []Report) []Report {
	if s.historyDays <= 0 {
		return reports
	}
	cutoff := s.now().AddDate(0, 0, -s.historyDays)

	kept := reports[:0]
	for _, r := range reports {
		if !r.Timestamp.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}
