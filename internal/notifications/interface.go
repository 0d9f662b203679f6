package notifications

// Alert levels in increasing severity
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelError    = "error"
	LevelCritical = "critical"
)

// Notifier defines the interface for notification services. Implementations
// are fire-and-forget targets; callers log errors rather than acting on them.
type Notifier interface {
	// SendAlert sends an alert with a title, body, severity level and
	// optional structured context
	SendAlert(title, message, level string, data map[string]interface{}) error
}
