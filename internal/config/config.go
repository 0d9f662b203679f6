package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the full process configuration, constructed once at startup
// and passed into component constructors.
type Config struct {
	Environment string
	LogLevel    string

	Exchange ExchangeConfig

	Risk RiskConfig

	Reconciliation ReconciliationConfig

	Monitoring MonitoringConfig

	Notifications NotificationsConfig

	// DryRun is the startup value of the runtime-toggleable dry-run flag.
	DryRun bool
}

// ExchangeConfig holds exchange client credentials and environment selection
type ExchangeConfig struct {
	Name      string
	APIKey    string
	APISecret string
	Testnet   bool
	Demo      bool
}

// RiskConfig holds the risk limits and risk-engine tuning knobs
type RiskConfig struct {
	// Hard limits checked on every order
	MaxOrderSize           decimal.Decimal
	RiskPerTrade           float64
	MaxSymbolExposure      decimal.Decimal
	MaxSymbolConcentration float64
	MaxPortfolioExposure   decimal.Decimal
	MaxLeverage            float64
	MaxCorrelation         float64
	MaxDailyDrawdown       float64
	MaxWeeklyDrawdown      float64
	MaxTradesPerDay        int

	// Drawdown-based position scaling
	DrawdownControlEnabled    bool
	MaxDrawdownThreshold      float64
	CriticalDrawdownThreshold float64
	DrawdownScalingFactor     float64

	// Volatility-based position scaling
	VolatilityScalingEnabled bool
	VolatilityBaseline       float64
	VolatilityMaxAdjustment  float64

	// Per-symbol circuit breakers
	CircuitBreakerEnabled         bool
	CircuitBreakerThreshold       float64
	CircuitBreakerCooldownMinutes int

	MonitoringInterval time.Duration
}

// ReconciliationConfig holds the reconciliation job schedule and thresholds
type ReconciliationConfig struct {
	Interval  string // "hourly", "daily", "weekly"
	TimeOfDay string // "HH:MM" for daily/weekly schedules

	MismatchPercentageThreshold float64
	MissingOrdersThreshold      int
	ExtraOrdersThreshold        int

	ReportFile  string
	HistoryDays int
}

// MonitoringConfig holds HTTP port assignments for metrics and health, plus
// the market data poll cadence
type MonitoringConfig struct {
	PrometheusPort    int
	HealthPort        int
	PricePollInterval time.Duration
}

// NotificationsConfig holds alert delivery settings
type NotificationsConfig struct {
	TelegramToken  string
	TelegramChatID string
}

// Load builds a Config from environment variables with documented defaults
func Load() *Config {
	return &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "debug"),
		DryRun:      getEnvBool("DRY_RUN", false),

		Exchange: ExchangeConfig{
			Name:      getEnv("EXCHANGE_NAME", "bybit"),
			APIKey:    getEnv("EXCHANGE_API_KEY", ""),
			APISecret: getEnv("EXCHANGE_API_SECRET", ""),
			Testnet:   getEnvBool("EXCHANGE_TESTNET", true),
			Demo:      getEnvBool("EXCHANGE_DEMO", false),
		},

		Risk: RiskConfig{
			MaxOrderSize:           getEnvDecimal("MAX_ORDER_SIZE", "10000"),
			RiskPerTrade:           getEnvFloat("RISK_PER_TRADE", 0.01),
			MaxSymbolExposure:      getEnvDecimal("MAX_SYMBOL_EXPOSURE", "50000"),
			MaxSymbolConcentration: getEnvFloat("MAX_SYMBOL_CONCENTRATION", 0.25),
			MaxPortfolioExposure:   getEnvDecimal("MAX_PORTFOLIO_EXPOSURE", "200000"),
			MaxLeverage:            getEnvFloat("MAX_LEVERAGE", 3.0),
			MaxCorrelation:         getEnvFloat("MAX_CORRELATION", 0.7),
			MaxDailyDrawdown:       getEnvFloat("MAX_DAILY_DRAWDOWN", 0.05),
			MaxWeeklyDrawdown:      getEnvFloat("MAX_WEEKLY_DRAWDOWN", 0.10),
			MaxTradesPerDay:        getEnvInt("MAX_TRADES_PER_DAY", 20),

			DrawdownControlEnabled:    getEnvBool("DRAWDOWN_CONTROL_ENABLED", true),
			MaxDrawdownThreshold:      getEnvFloat("MAX_DRAWDOWN_THRESHOLD", 0.15),
			CriticalDrawdownThreshold: getEnvFloat("CRITICAL_DRAWDOWN_THRESHOLD", 0.25),
			DrawdownScalingFactor:     getEnvFloat("DRAWDOWN_SCALING_FACTOR", 2.0),

			VolatilityScalingEnabled: getEnvBool("VOLATILITY_SCALING_ENABLED", true),
			VolatilityBaseline:       getEnvFloat("VOLATILITY_BASELINE", 0.40),
			VolatilityMaxAdjustment:  getEnvFloat("VOLATILITY_MAX_ADJUSTMENT", 0.50),

			CircuitBreakerEnabled:         getEnvBool("CIRCUIT_BREAKER_ENABLED", true),
			CircuitBreakerThreshold:       getEnvFloat("CIRCUIT_BREAKER_THRESHOLD", 0.10),
			CircuitBreakerCooldownMinutes: getEnvInt("CIRCUIT_BREAKER_COOLDOWN_MINUTES", 30),

			MonitoringInterval: getEnvDuration("RISK_MONITORING_INTERVAL_SECONDS", 60*time.Second),
		},

		Reconciliation: ReconciliationConfig{
			Interval:  getEnv("RECONCILIATION_INTERVAL", "daily"),
			TimeOfDay: getEnv("RECONCILIATION_TIME", "00:30"),

			MismatchPercentageThreshold: getEnvFloat("RECONCILIATION_MISMATCH_THRESHOLD", 0.01),
			MissingOrdersThreshold:      getEnvInt("RECONCILIATION_MISSING_THRESHOLD", 2),
			ExtraOrdersThreshold:        getEnvInt("RECONCILIATION_EXTRA_THRESHOLD", 2),

			ReportFile:  getEnv("RECONCILIATION_REPORT_FILE", "data/reconciliation_reports.json"),
			HistoryDays: getEnvInt("RECONCILIATION_HISTORY_DAYS", 30),
		},

		Monitoring: MonitoringConfig{
			PrometheusPort:    getEnvInt("PROMETHEUS_PORT", 8080),
			HealthPort:        getEnvInt("HEALTH_PORT", 8081),
			PricePollInterval: getEnvDuration("PRICE_POLL_INTERVAL_SECONDS", 15*time.Second),
		},

		Notifications: NotificationsConfig{
			TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
			TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
		},
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDecimal(key string, defaultVal string) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(defaultVal)
	return d
}

// getEnvDuration reads a duration expressed in whole seconds
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
