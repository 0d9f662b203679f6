package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantrail/riskcore/internal/errors"
	"github.com/quantrail/riskcore/internal/exchange"
	"github.com/quantrail/riskcore/internal/logger"
	"github.com/quantrail/riskcore/internal/monitoring"
	"github.com/quantrail/riskcore/internal/notifications"
	"github.com/quantrail/riskcore/internal/portfolio"
	"github.com/quantrail/riskcore/internal/risk"
	"github.com/quantrail/riskcore/internal/safety"
	"github.com/quantrail/riskcore/pkg/types"
)

// rejection stages for metrics
const (
	stageBasicRules = "basic_rules"
	stageRisk       = "risk"
	stageExchange   = "exchange"
)

// Engine is the only entry point that accepts orders. It applies engine-level
// sanity checks, delegates to the risk pipeline, submits to the exchange and
// tracks order lifecycle through fills.
type Engine struct {
	exchange  exchange.Client
	feed      exchange.MarketDataFeed
	riskMgr   *risk.Manager
	portfolio *portfolio.Manager
	validator *safety.Validator
	notifier  notifications.Notifier
	metrics   monitoring.MetricsSink
	health    *monitoring.HealthChecker
	log       *logger.Logger

	dryRun atomic.Bool

	mu      sync.RWMutex
	orders  map[string]*types.Order
	watched map[string]bool

	// serializes fills per symbol; average-price merges are not safe under
	// concurrent read-modify-write on the same position
	symbolMu sync.Mutex
	symbols  map[string]*sync.Mutex
}

// New creates a trading engine. The market data feed may be nil, in which
// case no prices flow to the circuit breakers or the portfolio marks.
func New(ex exchange.Client, feed exchange.MarketDataFeed, riskMgr *risk.Manager, pf *portfolio.Manager, notifier notifications.Notifier, metrics monitoring.MetricsSink, health *monitoring.HealthChecker, log *logger.Logger) *Engine {
	if metrics == nil {
		metrics = monitoring.NewNoopSink()
	}
	return &Engine{
		exchange:  ex,
		feed:      feed,
		riskMgr:   riskMgr,
		portfolio: pf,
		validator: safety.NewValidator(),
		notifier:  notifier,
		metrics:   metrics,
		health:    health,
		log:       log,
		orders:    make(map[string]*types.Order),
		watched:   make(map[string]bool),
		symbols:   make(map[string]*sync.Mutex),
	}
}

// SetDryRun toggles dry-run mode. When enabled, placement short-circuits
// before any exchange call.
func (e *Engine) SetDryRun(enabled bool) {
	e.dryRun.Store(enabled)
	if e.log != nil {
		e.log.Info("Dry-run mode set to %v", enabled)
	}
}

// IsDryRun reports whether dry-run mode is active
func (e *Engine) IsDryRun() bool {
	return e.dryRun.Load()
}

// Start probes exchange connectivity and launches risk monitoring
func (e *Engine) Start(ctx context.Context) error {
	if err := e.exchange.TestConnection(ctx); err != nil {
		if e.health != nil {
			e.health.SetConnected(false)
		}
		return errors.Wrap(err, errors.ErrorCategoryConnection, "engine", "start")
	}
	if e.health != nil {
		e.health.SetConnected(true)
	}

	e.riskMgr.StartMonitoring(ctx)

	if e.feed != nil {
		if err := e.feed.Start(ctx); err != nil {
			if e.log != nil {
				e.log.LogWarning("engine", "market data feed failed to start: %v", err)
			}
		}
	}

	if e.log != nil {
		e.log.Info("Trading engine started on %s", e.exchange.GetName())
	}
	return nil
}

// Stop shuts down the market data feed and risk monitoring, waiting for both
func (e *Engine) Stop() {
	if e.feed != nil {
		if err := e.feed.Stop(); err != nil && e.log != nil {
			e.log.LogWarning("engine", "market data feed stop: %v", err)
		}
	}
	e.riskMgr.StopMonitoring()
	if e.log != nil {
		e.log.Info("Trading engine stopped")
	}
}

// PlaceOrder validates and submits an order. Rejections at any stage return
// the order in REJECTED state together with a nil error; only submission
// infrastructure failures return a non-nil error.
func (e *Engine) PlaceOrder(ctx context.Context, req exchange.OrderRequest, stopLossPct float64) (*types.Order, error) {
	order := &types.Order{
		ID:          uuid.NewString(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Quantity:    req.Quantity,
		Price:       req.Price,
		StopLossPct: stopLossPct,
		Status:      types.OrderStatusPending,
		CreatedAt:   time.Now(),
	}
	e.track(order)

	// engine-level sanity checks before the risk pipeline sees the order
	if reason, ok := e.checkBasicRules(order); !ok {
		e.reject(order, stageBasicRules, reason, notifications.LevelWarning)
		return order, nil
	}

	if ok, reason := e.riskMgr.ValidateOrder(order); !ok {
		e.reject(order, stageRisk, reason, notifications.LevelWarning)
		return order, nil
	}

	e.watchSymbol(order.Symbol)

	if e.log != nil {
		notional, _ := order.Notional().Float64()
		e.log.LogOrderDecision(order.Symbol, string(order.Side), notional, true, "")
	}
	if e.health != nil {
		e.health.RecordOrder()
	}

	if e.dryRun.Load() {
		e.setStatus(order, types.OrderStatusOpen, "")
		e.metrics.RecordOrderSimulated(order.Symbol, string(order.Side))
		e.riskMgr.RecordTrade(order.Symbol)
		if e.log != nil {
			e.log.Trade("DRY RUN: simulated %s %s %s @ %s", order.Side, order.Quantity.String(), order.Symbol, order.Price.String())
		}
		return order, nil
	}

	req.ClientOrdID = order.ID
	result, err := e.exchange.CreateOrder(ctx, req)
	if err != nil {
		e.handleSubmitError(order, err)
		return order, err
	}

	order.ExchangeID = result.OrderID
	e.setStatus(order, types.OrderStatusOpen, "")
	e.riskMgr.RecordTrade(order.Symbol)

	notional, _ := order.Notional().Float64()
	e.metrics.RecordOrderPlaced(order.Symbol, string(order.Side), notional)
	if e.log != nil {
		e.log.Trade("Placed %s %s %s, exchange id %s", order.Side, order.Quantity.String(), order.Symbol, result.OrderID)
	}
	return order, nil
}

// CancelOrder cancels an open order at the exchange
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	order, ok := e.GetOrder(orderID)
	if !ok {
		return errors.NewValidationError("engine", "cancel_order", fmt.Sprintf("unknown order %s", orderID))
	}
	if order.Status != types.OrderStatusOpen && order.Status != types.OrderStatusPartiallyFilled {
		return errors.NewValidationError("engine", "cancel_order", fmt.Sprintf("order %s is %s", orderID, order.Status))
	}

	if !e.dryRun.Load() {
		if err := e.exchange.CancelOrder(ctx, order.Symbol, order.ExchangeID); err != nil {
			return err
		}
	}
	e.setStatus(order, types.OrderStatusCancelled, "")
	return nil
}

// HandleFill applies a fill notification to the order and, for full fills,
// translates side and quantity into a signed position delta.
func (e *Engine) HandleFill(ctx context.Context, fill types.Fill) error {
	order, ok := e.GetOrder(fill.OrderID)
	if !ok {
		return errors.NewValidationError("engine", "handle_fill", fmt.Sprintf("fill for unknown order %s", fill.OrderID))
	}

	lock := e.symbolLock(order.Symbol)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	order.FilledQuantity = order.FilledQuantity.Add(fill.Quantity)
	order.FillPrice = fill.Price
	order.UpdatedAt = time.Now()
	if fill.Partial && order.FilledQuantity.LessThan(order.Quantity) {
		order.Status = types.OrderStatusPartiallyFilled
		e.mu.Unlock()
		return nil
	}
	order.Status = types.OrderStatusFilled
	e.mu.Unlock()

	delta := order.FilledQuantity
	if order.Side == types.SideSell {
		delta = delta.Neg()
	}
	realized, err := e.portfolio.AddPosition(ctx, order.Symbol, delta, fill.Price)
	if err != nil {
		return errors.Wrap(err, errors.ErrorCategoryValidation, "engine", "handle_fill")
	}
	if !realized.IsZero() {
		e.riskMgr.RecordPnL(realized)
	}

	e.metrics.RecordTrade(order.Symbol, string(order.Side))
	if e.log != nil {
		e.log.Trade("Filled %s %s %s @ %s", order.Side, order.FilledQuantity.String(), order.Symbol, fill.Price.String())
	}
	return nil
}

// GetOrder returns a tracked order by engine ID
func (e *Engine) GetOrder(orderID string) (*types.Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	order, ok := e.orders[orderID]
	return order, ok
}

// OpenOrders returns all orders still open or partially filled
func (e *Engine) OpenOrders() []*types.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()

	open := make([]*types.Order, 0)
	for _, o := range e.orders {
		if o.Status == types.OrderStatusOpen || o.Status == types.OrderStatusPartiallyFilled {
			open = append(open, o)
		}
	}
	return open
}

// OrdersSince returns all tracked orders created at or after the cutoff,
// regardless of status
func (e *Engine) OrdersSince(cutoff time.Time) []*types.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()

	matched := make([]*types.Order, 0)
	for _, o := range e.orders {
		if !o.CreatedAt.Before(cutoff) {
			matched = append(matched, o)
		}
	}
	return matched
}

func (e *Engine) checkBasicRules(order *types.Order) (string, bool) {
	if res := e.validator.ValidateSymbol(order.Symbol); !res.Valid {
		return res.Message, false
	}

	price, _ := order.Price.Float64()
	qty, _ := order.Quantity.Float64()
	if res := e.validator.ValidateOrderValue(price, qty, order.Symbol); !res.Valid {
		return res.Message, false
	}
	return "", true
}

// handleSubmitError categorizes an exchange failure: connectivity problems
// escalate as critical, everything else as an exchange-side rejection.
func (e *Engine) handleSubmitError(order *types.Order, err error) {
	category := errors.CategoryOf(err)

	level := notifications.LevelError
	if category == errors.ErrorCategoryConnection || category == errors.ErrorCategoryTimeout {
		level = notifications.LevelCritical
		if e.health != nil {
			e.health.SetConnected(false)
		}
	}

	e.reject(order, stageExchange, err.Error(), level)
	e.metrics.RecordError("order_submit_" + string(category))
}

func (e *Engine) reject(order *types.Order, stage, reason, level string) {
	e.setStatus(order, types.OrderStatusRejected, reason)
	e.metrics.RecordOrderRejected(order.Symbol, stage)

	if e.log != nil {
		notional, _ := order.Notional().Float64()
		e.log.LogOrderDecision(order.Symbol, string(order.Side), notional, false, reason)
	}

	if e.notifier != nil {
		err := e.notifier.SendAlert("Order Rejected",
			fmt.Sprintf("%s %s %s rejected at %s stage: %s",
				order.Side, order.Quantity.String(), order.Symbol, stage, reason),
			level,
			map[string]interface{}{
				"order_id": order.ID,
				"symbol":   order.Symbol,
				"stage":    stage,
			})
		if err != nil && e.log != nil {
			e.log.Warning("Alert dispatch failed: %v", err)
		}
	}
}

func (e *Engine) track(order *types.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders[order.ID] = order
}

func (e *Engine) setStatus(order *types.Order, status types.OrderStatus, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	order.Status = status
	order.RejectReason = reason
	order.UpdatedAt = time.Now()
}

func (e *Engine) symbolLock(symbol string) *sync.Mutex {
	e.symbolMu.Lock()
	defer e.symbolMu.Unlock()
	lock, ok := e.symbols[symbol]
	if !ok {
		lock = &sync.Mutex{}
		e.symbols[symbol] = lock
	}
	return lock
}

// UpdateMarketPrice feeds a ticker price through the risk layer and the
// portfolio mark
func (e *Engine) UpdateMarketPrice(symbol string, price float64) {
	e.riskMgr.UpdatePrice(symbol, price)
	e.portfolio.UpdatePositionPrice(symbol, decimal.NewFromFloat(price))
}

// watchSymbol lazily registers a circuit breaker for the symbol and, when a
// market data feed is attached, subscribes it so ticker prices reach the
// breaker and the portfolio mark. Idempotent per symbol.
func (e *Engine) watchSymbol(symbol string) {
	e.mu.Lock()
	if e.watched[symbol] {
		e.mu.Unlock()
		return
	}
	e.watched[symbol] = true
	e.mu.Unlock()

	e.riskMgr.RegisterCircuitBreaker(symbol, 0, 0)

	if e.feed == nil {
		return
	}
	if err := e.feed.SubscribeTicker(symbol, func(tick *types.Ticker) {
		e.UpdateMarketPrice(tick.Symbol, tick.Price)
	}); err != nil && e.log != nil {
		e.log.LogWarning("engine", "ticker subscription failed for %s: %v", symbol, err)
	}
}
