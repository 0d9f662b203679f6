package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "bybit", cfg.Exchange.Name)
	assert.True(t, cfg.Exchange.Testnet)
	assert.False(t, cfg.DryRun)

	assert.True(t, cfg.Risk.MaxOrderSize.Equal(decimalFromString(t, "10000")))
	assert.Equal(t, 0.01, cfg.Risk.RiskPerTrade)
	assert.Equal(t, 3.0, cfg.Risk.MaxLeverage)
	assert.Equal(t, 20, cfg.Risk.MaxTradesPerDay)
	assert.Equal(t, time.Minute, cfg.Risk.MonitoringInterval)

	assert.Equal(t, "daily", cfg.Reconciliation.Interval)
	assert.Equal(t, "00:30", cfg.Reconciliation.TimeOfDay)
	assert.Equal(t, 30, cfg.Reconciliation.HistoryDays)

	assert.Equal(t, 8080, cfg.Monitoring.PrometheusPort)
	assert.Equal(t, 8081, cfg.Monitoring.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Monitoring.PricePollInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MAX_ORDER_SIZE", "2500.50")
	t.Setenv("MAX_LEVERAGE", "5")
	t.Setenv("MAX_TRADES_PER_DAY", "3")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("RECONCILIATION_INTERVAL", "hourly")
	t.Setenv("RISK_MONITORING_INTERVAL_SECONDS", "15")
	t.Setenv("PRICE_POLL_INTERVAL_SECONDS", "5")

	cfg := Load()

	assert.True(t, cfg.Risk.MaxOrderSize.Equal(decimalFromString(t, "2500.50")))
	assert.Equal(t, 5.0, cfg.Risk.MaxLeverage)
	assert.Equal(t, 3, cfg.Risk.MaxTradesPerDay)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "hourly", cfg.Reconciliation.Interval)
	assert.Equal(t, 15*time.Second, cfg.Risk.MonitoringInterval)
	assert.Equal(t, 5*time.Second, cfg.Monitoring.PricePollInterval)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MAX_ORDER_SIZE", "not-a-number")
	t.Setenv("MAX_LEVERAGE", "plenty")
	t.Setenv("RISK_MONITORING_INTERVAL_SECONDS", "-5")

	cfg := Load()

	assert.True(t, cfg.Risk.MaxOrderSize.Equal(decimalFromString(t, "10000")))
	assert.Equal(t, 3.0, cfg.Risk.MaxLeverage)
	assert.Equal(t, time.Minute, cfg.Risk.MonitoringInterval)
}
