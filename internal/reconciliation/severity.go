package reconciliation

import (
	"github.com/quantrail/riskcore/internal/notifications"
)

// DetermineAlertSeverity grades a reconciliation result against the
// thresholds: any metric at 3x or more is critical, 2x is error, 1x is
// warning, everything under threshold is info. A classification failure
// defaults to error so a broken classifier surfaces loudly rather than
// silently downgrading alerts.
func DetermineAlertSeverity(result *Result, thresholds Thresholds) (severity string) {
	defer func() {
		if r := recover(); r != nil {
			severity = notifications.LevelError
		}
	}()

	if result == nil {
		return notifications.LevelError
	}

	worst := 0.0
	if thresholds.MismatchPercentage > 0 {
		worst = maxFloat(worst, result.MismatchPercentage/thresholds.MismatchPercentage)
	}
	if thresholds.MissingOrders > 0 {
		worst = maxFloat(worst, float64(len(result.MissingOrders))/float64(thresholds.MissingOrders))
	}
	if thresholds.ExtraOrders > 0 {
		worst = maxFloat(worst, float64(len(result.ExtraOrders))/float64(thresholds.ExtraOrders))
	}

	switch {
	case worst >= 3:
		return notifications.LevelCritical
	case worst >= 2:
		return notifications.LevelError
	case worst >= 1:
		return notifications.LevelWarning
	default:
		return notifications.LevelInfo
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
