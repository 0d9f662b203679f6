package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantrail/riskcore/internal/config"
	"github.com/quantrail/riskcore/internal/logger"
	"github.com/quantrail/riskcore/internal/monitoring"
	"github.com/quantrail/riskcore/internal/portfolio"
	"github.com/quantrail/riskcore/internal/safety"
)

// monitorErrorBackoff is slept after a failed monitoring tick
const monitorErrorBackoff = 5 * time.Second

// EquitySource reports the account balance for the configured equity asset
type EquitySource interface {
	GetBalance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// Manager gates every order against the configured risk limits and supervises
// the trading halt state from a background monitoring loop.
type Manager struct {
	mu sync.RWMutex

	cfg       config.RiskConfig
	portfolio *portfolio.Manager
	breakers  *safety.CircuitBreakerRegistry
	metrics   monitoring.MetricsSink
	health    *monitoring.HealthChecker
	log       *logger.Logger

	equitySource EquitySource
	equityAsset  string

	halted     bool
	haltReason string

	dailyTrades map[string]int
	dailyPnL    decimal.Decimal
	weeklyPnL   decimal.Decimal
	currentDay  string
	weekStart   time.Time

	dayStartEquity  decimal.Decimal
	weekStartEquity decimal.Decimal

	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	now func() time.Time
}

// NewManager creates a risk manager over the given portfolio
func NewManager(cfg config.RiskConfig, pf *portfolio.Manager, breakers *safety.CircuitBreakerRegistry, metrics monitoring.MetricsSink, log *logger.Logger) *Manager {
	if metrics == nil {
		metrics = monitoring.NewNoopSink()
	}
	now := time.Now()
	equity := pf.AccountEquity()
	return &Manager{
		cfg:             cfg,
		portfolio:       pf,
		breakers:        breakers,
		metrics:         metrics,
		log:             log,
		dailyTrades:     make(map[string]int),
		currentDay:      now.Format("2006-01-02"),
		weekStart:       now,
		dayStartEquity:  equity,
		weekStartEquity: equity,
		now:             time.Now,
	}
}

// SetHealth mirrors the halt state into the health report
func (m *Manager) SetHealth(h *monitoring.HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health = h
}

// SetEquitySource has the monitoring loop refresh account equity from the
// exchange balance each tick
func (m *Manager) SetEquitySource(src EquitySource, asset string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equitySource = src
	m.equityAsset = asset
}

// RegisterCircuitBreaker registers a per-symbol circuit breaker. Zero values
// fall back to the configured defaults. Re-registering a symbol replaces its
// breaker and clears any triggered state. A no-op when circuit breakers are
// disabled in the configuration.
func (m *Manager) RegisterCircuitBreaker(symbol string, threshold float64, cooldown time.Duration) {
	cfg := m.Limits()
	if !cfg.CircuitBreakerEnabled {
		return
	}
	if threshold <= 0 {
		threshold = cfg.CircuitBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = time.Duration(cfg.CircuitBreakerCooldownMinutes) * time.Minute
	}
	m.breakers.Register(symbol, safety.CircuitBreakerConfig{
		Threshold: threshold,
		Cooldown:  cooldown,
	})
	if m.log != nil {
		m.log.Risk("Circuit breaker registered for %s: threshold=%.2f%% cooldown=%s", symbol, threshold*100, cooldown)
	}
}

// UpdatePrice feeds a price observation to the symbol's circuit breaker
func (m *Manager) UpdatePrice(symbol string, price float64) {
	m.breakers.UpdatePrice(symbol, price)
	m.metrics.UpdatePrice(symbol, price)
	if cb, ok := m.breakers.Get(symbol); ok {
		m.metrics.SetCircuitBreaker(symbol, cb.IsTriggered())
	}
}

// RecordTrade counts a validated order against the symbol's daily budget
func (m *Manager) RecordTrade(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyTrades[symbol]++
}

// RecordPnL folds realized profit or loss into the daily and weekly totals
func (m *Manager) RecordPnL(pnl decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL = m.dailyPnL.Add(pnl)
	m.weeklyPnL = m.weeklyPnL.Add(pnl)
}

// IsHalted reports whether trading is halted, with the halt reason
func (m *Manager) IsHalted() (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.halted, m.haltReason
}

// HaltTrading halts trading with a reason. Administrative override.
func (m *Manager) HaltTrading(reason string) {
	m.mu.Lock()
	wasHalted := m.halted
	m.halted = true
	m.haltReason = reason
	health := m.health
	m.mu.Unlock()

	m.metrics.SetHalted(true)
	if health != nil {
		health.SetHalted(true, reason)
	}
	if !wasHalted && m.log != nil {
		m.log.LogHaltEvent(true, reason)
	}
}

// ResumeTrading clears the halt state. Administrative override.
func (m *Manager) ResumeTrading() {
	m.mu.Lock()
	wasHalted := m.halted
	m.halted = false
	m.haltReason = ""
	health := m.health
	m.mu.Unlock()

	m.metrics.SetHalted(false)
	if health != nil {
		health.SetHalted(false, "")
	}
	if wasHalted && m.log != nil {
		m.log.LogHaltEvent(false, "")
	}
}

// UpdateLimits replaces the active risk limits. Administrative only.
func (m *Manager) UpdateLimits(cfg config.RiskConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// Limits returns a snapshot of the active risk limits
func (m *Manager) Limits() config.RiskConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// StartMonitoring launches the background risk supervision loop
func (m *Manager) StartMonitoring(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	m.mu.Unlock()

	go m.monitoringLoop(loopCtx)

	if m.log != nil {
		m.log.Risk("Risk monitoring started: interval=%s", m.cfg.MonitoringInterval)
	}
}

// StopMonitoring cancels the monitoring loop and waits for it to exit
func (m *Manager) StopMonitoring() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.running = false
	m.mu.Unlock()

	cancel()
	<-done

	if m.log != nil {
		m.log.Risk("Risk monitoring stopped")
	}
}

func (m *Manager) monitoringLoop(ctx context.Context) {
	defer close(m.done)

	interval := m.cfg.MonitoringInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.monitoringTick(ctx); err != nil {
				if m.log != nil {
					m.log.LogError("risk monitoring tick", err)
				}
				m.metrics.RecordError("risk_monitoring")
				select {
				case <-ctx.Done():
					return
				case <-time.After(monitorErrorBackoff):
				}
			}
		}
	}
}

// monitoringTick refreshes equity, evaluates halt conditions, rolls over
// counters and publishes risk gauges. Errors are returned for logging, never
// fatal to the loop.
func (m *Manager) monitoringTick(ctx context.Context) error {
	if err := m.refreshEquity(ctx); err != nil {
		return err
	}
	m.rolloverCounters()
	m.evaluateHaltConditions()
	m.publishGauges()
	return nil
}

// refreshEquity pulls the live balance so drawdown tracks the exchange, not
// just locally realized PnL. No-op until an equity source is configured.
func (m *Manager) refreshEquity(ctx context.Context) error {
	m.mu.RLock()
	src := m.equitySource
	asset := m.equityAsset
	m.mu.RUnlock()

	if src == nil {
		return nil
	}
	balance, err := src.GetBalance(ctx, asset)
	if err != nil {
		return fmt.Errorf("refresh equity from %s balance: %w", asset, err)
	}
	if balance.IsPositive() {
		m.portfolio.UpdateAccountEquity(balance)
	}
	return nil
}

// evaluateHaltConditions applies the halt transitions in priority order:
// critical drawdown first, then daily, then weekly. Resume requires the
// current drawdown to fall below 80% of the critical threshold.
func (m *Manager) evaluateHaltConditions() {
	dd := m.portfolio.GetDrawdownMetrics()
	equity := m.portfolio.AccountEquity()

	m.mu.RLock()
	cfg := m.cfg
	halted := m.halted
	dayStart := m.dayStartEquity
	weekStart := m.weekStartEquity
	m.mu.RUnlock()

	if !halted {
		switch {
		case dd.CurrentDrawdown >= cfg.CriticalDrawdownThreshold:
			m.HaltTrading(fmt.Sprintf("Critical drawdown %.2f%% exceeds threshold %.2f%%",
				dd.CurrentDrawdown*100, cfg.CriticalDrawdownThreshold*100))
		case periodDrawdown(dayStart, equity) >= cfg.MaxDailyDrawdown:
			m.HaltTrading(fmt.Sprintf("Daily drawdown %.2f%% exceeds limit %.2f%%",
				periodDrawdown(dayStart, equity)*100, cfg.MaxDailyDrawdown*100))
		case periodDrawdown(weekStart, equity) >= cfg.MaxWeeklyDrawdown:
			m.HaltTrading(fmt.Sprintf("Weekly drawdown %.2f%% exceeds limit %.2f%%",
				periodDrawdown(weekStart, equity)*100, cfg.MaxWeeklyDrawdown*100))
		}
		return
	}

	if dd.CurrentDrawdown < cfg.CriticalDrawdownThreshold*0.8 {
		m.ResumeTrading()
		if m.log != nil {
			m.log.Risk("Drawdown recovered to %.2f%%, trading resumed", dd.CurrentDrawdown*100)
		}
	}
}

// rolloverCounters resets daily counters at date change and weekly counters
// every 7 days. Wall-clock comparison, not a fixed timer.
func (m *Manager) rolloverCounters() {
	now := m.now()
	equity := m.portfolio.AccountEquity()

	m.mu.Lock()
	defer m.mu.Unlock()

	if day := now.Format("2006-01-02"); day != m.currentDay {
		m.currentDay = day
		m.dailyTrades = make(map[string]int)
		m.dailyPnL = decimal.Zero
		m.dayStartEquity = equity
	}

	if now.Sub(m.weekStart) >= 7*24*time.Hour {
		m.weekStart = now
		m.weeklyPnL = decimal.Zero
		m.weekStartEquity = equity
	}
}

func (m *Manager) publishGauges() {
	dd := m.portfolio.GetDrawdownMetrics()
	equityF, _ := m.portfolio.AccountEquity().Float64()
	exposureF, _ := m.portfolio.TotalExposure().Float64()

	m.metrics.SetEquity(equityF)
	m.metrics.SetExposure(exposureF)
	m.metrics.SetDrawdown(dd.CurrentDrawdown, dd.MaxDrawdown)

	for symbol, status := range m.breakers.GetAllStatuses() {
		m.metrics.SetCircuitBreaker(symbol, status.State == safety.StateTriggered.String())
	}
}

// periodDrawdown returns the fractional loss from a period-start equity, 0
// when flat or profitable.
func periodDrawdown(start, current decimal.Decimal) float64 {
	if !start.IsPositive() {
		return 0
	}
	dd, _ := start.Sub(current).Div(start).Float64()
	if dd < 0 {
		return 0
	}
	return dd
}
