package notifications

import (
	"github.com/quantrail/riskcore/internal/logger"
)

// LogNotifier writes alerts to the session log. Used when no external
// notification channel is configured.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendAlert(title, message, level string, data map[string]interface{}) error {
	if n.log == nil {
		return nil
	}
	switch level {
	case LevelError, LevelCritical:
		n.log.Error("ALERT [%s] %s: %s %v", level, title, message, data)
	case LevelWarning:
		n.log.Warning("ALERT [%s] %s: %s %v", level, title, message, data)
	default:
		n.log.Info("ALERT [%s] %s: %s %v", level, title, message, data)
	}
	return nil
}
