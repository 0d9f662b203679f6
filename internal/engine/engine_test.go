package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/riskcore/internal/config"
	"github.com/quantrail/riskcore/internal/errors"
	"github.com/quantrail/riskcore/internal/exchange"
	"github.com/quantrail/riskcore/internal/monitoring"
	"github.com/quantrail/riskcore/internal/portfolio"
	"github.com/quantrail/riskcore/internal/risk"
	"github.com/quantrail/riskcore/internal/safety"
	"github.com/quantrail/riskcore/pkg/types"
)

type mockExchange struct {
	createErr    error
	createCalls  int
	cancelCalls  int
	lastRequest  exchange.OrderRequest
	connectError error
}

func (m *mockExchange) GetName() string { return "mock" }

func (m *mockExchange) TestConnection(context.Context) error { return m.connectError }

func (m *mockExchange) CreateOrder(_ context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	m.createCalls++
	m.lastRequest = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &exchange.OrderResult{OrderID: "ex-123", Status: "New"}, nil
}

func (m *mockExchange) CancelOrder(context.Context, string, string) error {
	m.cancelCalls++
	return nil
}

func (m *mockExchange) GetBalance(context.Context, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(100000), nil
}

func (m *mockExchange) GetLatestPrice(context.Context, string) (float64, error) {
	return 50000, nil
}

type recordingNotifier struct {
	levels []string
	titles []string
}

func (r *recordingNotifier) SendAlert(title, _, level string, _ map[string]interface{}) error {
	r.titles = append(r.titles, title)
	r.levels = append(r.levels, level)
	return nil
}

type stubVolSource struct{}

func (stubVolSource) GetHistoricalVolatility(context.Context, string) (float64, error) {
	return 0.3, nil
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxOrderSize:           d("10000"),
		RiskPerTrade:           0.02,
		MaxSymbolExposure:      d("50000"),
		MaxSymbolConcentration: 0.9,
		MaxPortfolioExposure:   d("200000"),
		MaxLeverage:            3.0,
		MaxCorrelation:         0.7,
		MaxDailyDrawdown:       0.05,
		MaxWeeklyDrawdown:      0.10,
		MaxTradesPerDay:        10,

		DrawdownControlEnabled:    true,
		MaxDrawdownThreshold:      0.15,
		CriticalDrawdownThreshold: 0.25,
		DrawdownScalingFactor:     2.0,

		CircuitBreakerEnabled:         true,
		CircuitBreakerThreshold:       0.10,
		CircuitBreakerCooldownMinutes: 30,
		MonitoringInterval:            time.Minute,
	}
}

func newTestEngine() (*Engine, *mockExchange, *recordingNotifier) {
	ex := &mockExchange{}
	notifier := &recordingNotifier{}
	pf := portfolio.NewManager(d("100000"), stubVolSource{}, nil, nil)
	rm := risk.NewManager(testRiskConfig(), pf, safety.NewCircuitBreakerRegistry(), monitoring.NewNoopSink(), nil)
	eng := New(ex, nil, rm, pf, notifier, monitoring.NewNoopSink(), nil, nil)
	return eng, ex, notifier
}

func marketBuy(symbol, qty, price string) exchange.OrderRequest {
	return exchange.OrderRequest{
		Symbol:   symbol,
		Side:     types.SideBuy,
		Type:     types.OrderTypeMarket,
		Quantity: d(qty),
		Price:    d(price),
	}
}

func TestPlaceOrderSubmits(t *testing.T) {
	eng, ex, notifier := newTestEngine()

	order, err := eng.PlaceOrder(context.Background(), marketBuy("BTCUSDT", "0.1", "50000"), 0.02)
	require.NoError(t, err)

	assert.Equal(t, types.OrderStatusOpen, order.Status)
	assert.Equal(t, "ex-123", order.ExchangeID)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, 1, ex.createCalls)
	assert.Equal(t, order.ID, ex.lastRequest.ClientOrdID)
	assert.Empty(t, notifier.levels)
}

func TestPlaceOrderDryRunSkipsExchange(t *testing.T) {
	eng, ex, _ := newTestEngine()
	eng.SetDryRun(true)

	order, err := eng.PlaceOrder(context.Background(), marketBuy("BTCUSDT", "0.1", "50000"), 0.02)
	require.NoError(t, err)

	assert.Equal(t, types.OrderStatusOpen, order.Status)
	assert.Zero(t, ex.createCalls, "dry run must never touch the exchange")
	assert.Empty(t, order.ExchangeID)
}

func TestPlaceOrderRiskRejectionIsWarning(t *testing.T) {
	eng, ex, notifier := newTestEngine()

	// 15000 notional breaks the 10000 size cap
	order, err := eng.PlaceOrder(context.Background(), marketBuy("BTCUSDT", "0.3", "50000"), 0.001)
	require.NoError(t, err, "risk rejection is not an infrastructure error")

	assert.Equal(t, types.OrderStatusRejected, order.Status)
	assert.Contains(t, order.RejectReason, "Order size")
	assert.Zero(t, ex.createCalls)
	require.Len(t, notifier.levels, 1)
	assert.Equal(t, "warning", notifier.levels[0])
}

func TestPlaceOrderBasicRuleRejection(t *testing.T) {
	eng, ex, notifier := newTestEngine()

	order, err := eng.PlaceOrder(context.Background(), marketBuy("BTC-USDT!", "0.1", "50000"), 0)
	require.NoError(t, err)

	assert.Equal(t, types.OrderStatusRejected, order.Status)
	assert.Zero(t, ex.createCalls)
	require.Len(t, notifier.levels, 1)
	assert.Equal(t, "warning", notifier.levels[0])
}

func TestPlaceOrderConnectionFailureIsCritical(t *testing.T) {
	eng, ex, notifier := newTestEngine()
	ex.createErr = errors.NewConnectionError("exchange", "create_order", assert.AnError)

	order, err := eng.PlaceOrder(context.Background(), marketBuy("BTCUSDT", "0.1", "50000"), 0.02)
	require.Error(t, err)

	assert.Equal(t, types.OrderStatusRejected, order.Status)
	require.Len(t, notifier.levels, 1)
	assert.Equal(t, "critical", notifier.levels[0])
}

func TestPlaceOrderExchangeRejectionIsError(t *testing.T) {
	eng, ex, notifier := newTestEngine()
	ex.createErr = errors.New(errors.ErrorCategoryInvalidOrder, "exchange", "create_order", "qty below minimum")

	order, err := eng.PlaceOrder(context.Background(), marketBuy("BTCUSDT", "0.1", "50000"), 0.02)
	require.Error(t, err)

	assert.Equal(t, types.OrderStatusRejected, order.Status)
	require.Len(t, notifier.levels, 1)
	assert.Equal(t, "error", notifier.levels[0])
}

func TestHandleFillBuyOpensPosition(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	order, err := eng.PlaceOrder(ctx, marketBuy("BTCUSDT", "0.1", "50000"), 0.02)
	require.NoError(t, err)

	require.NoError(t, eng.HandleFill(ctx, types.Fill{
		OrderID:  order.ID,
		Symbol:   "BTCUSDT",
		Side:     types.SideBuy,
		Quantity: d("0.1"),
		Price:    d("50010"),
	}))

	assert.Equal(t, types.OrderStatusFilled, order.Status)
	pos, ok := eng.portfolio.GetPosition("BTCUSDT")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(d("0.1")))
	assert.True(t, pos.AvgPrice.Equal(d("50010")), "fills apply at the fill price")
}

func TestHandleFillSellAppliesNegativeDelta(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	buy, err := eng.PlaceOrder(ctx, marketBuy("BTCUSDT", "0.2", "50000"), 0.02)
	require.NoError(t, err)
	require.NoError(t, eng.HandleFill(ctx, types.Fill{
		OrderID: buy.ID, Symbol: "BTCUSDT", Side: types.SideBuy, Quantity: d("0.2"), Price: d("50000"),
	}))

	sellReq := marketBuy("BTCUSDT", "0.1", "51000")
	sellReq.Side = types.SideSell
	sell, err := eng.PlaceOrder(ctx, sellReq, 0.02)
	require.NoError(t, err)
	require.NoError(t, eng.HandleFill(ctx, types.Fill{
		OrderID: sell.ID, Symbol: "BTCUSDT", Side: types.SideSell, Quantity: d("0.1"), Price: d("51000"),
	}))

	pos, ok := eng.portfolio.GetPosition("BTCUSDT")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(d("0.1")), "got %s", pos.Quantity)
}

func TestHandleFillPartial(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	order, err := eng.PlaceOrder(ctx, marketBuy("BTCUSDT", "0.2", "50000"), 0.02)
	require.NoError(t, err)

	require.NoError(t, eng.HandleFill(ctx, types.Fill{
		OrderID: order.ID, Symbol: "BTCUSDT", Side: types.SideBuy,
		Quantity: d("0.1"), Price: d("50000"), Partial: true,
	}))
	assert.Equal(t, types.OrderStatusPartiallyFilled, order.Status)
	_, ok := eng.portfolio.GetPosition("BTCUSDT")
	assert.False(t, ok, "partial fill does not open the position yet")

	require.NoError(t, eng.HandleFill(ctx, types.Fill{
		OrderID: order.ID, Symbol: "BTCUSDT", Side: types.SideBuy,
		Quantity: d("0.1"), Price: d("50000"),
	}))
	assert.Equal(t, types.OrderStatusFilled, order.Status)
	pos, ok := eng.portfolio.GetPosition("BTCUSDT")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(d("0.2")))
}

func TestHandleFillUnknownOrder(t *testing.T) {
	eng, _, _ := newTestEngine()

	err := eng.HandleFill(context.Background(), types.Fill{OrderID: "nope"})
	assert.Error(t, err)
}

func TestCancelOrder(t *testing.T) {
	eng, ex, _ := newTestEngine()
	ctx := context.Background()

	order, err := eng.PlaceOrder(ctx, marketBuy("BTCUSDT", "0.1", "50000"), 0.02)
	require.NoError(t, err)

	require.NoError(t, eng.CancelOrder(ctx, order.ID))
	assert.Equal(t, types.OrderStatusCancelled, order.Status)
	assert.Equal(t, 1, ex.cancelCalls)

	// cancelling again is rejected, the order is no longer open
	assert.Error(t, eng.CancelOrder(ctx, order.ID))
	assert.Error(t, eng.CancelOrder(ctx, "unknown"))
}

func TestOpenOrders(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	a, _ := eng.PlaceOrder(ctx, marketBuy("BTCUSDT", "0.1", "50000"), 0.02)
	b, _ := eng.PlaceOrder(ctx, marketBuy("ETHUSDT", "1", "2000"), 0.02)
	require.NoError(t, eng.CancelOrder(ctx, b.ID))

	open := eng.OpenOrders()
	require.Len(t, open, 1)
	assert.Equal(t, a.ID, open[0].ID)
}

func TestStartFailsWithoutConnectivity(t *testing.T) {
	eng, ex, _ := newTestEngine()
	ex.connectError = assert.AnError

	err := eng.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCategoryConnection, errors.CategoryOf(err))
}

type stubFeed struct {
	started   bool
	stopped   bool
	callbacks map[string]func(*types.Ticker)
}

func newStubFeed() *stubFeed {
	return &stubFeed{callbacks: make(map[string]func(*types.Ticker))}
}

func (s *stubFeed) SubscribeTicker(symbol string, callback func(*types.Ticker)) error {
	s.callbacks[symbol] = callback
	return nil
}

func (s *stubFeed) Start(context.Context) error { s.started = true; return nil }
func (s *stubFeed) Stop() error                 { s.stopped = true; return nil }

func newTestEngineWithFeed(feed exchange.MarketDataFeed) (*Engine, *portfolio.Manager, *risk.Manager) {
	pf := portfolio.NewManager(d("100000"), stubVolSource{}, nil, nil)
	rm := risk.NewManager(testRiskConfig(), pf, safety.NewCircuitBreakerRegistry(), monitoring.NewNoopSink(), nil)
	eng := New(&mockExchange{}, feed, rm, pf, &recordingNotifier{}, monitoring.NewNoopSink(), nil, nil)
	return eng, pf, rm
}

func TestHandleFillCloseRealizesPnL(t *testing.T) {
	eng, pf, rm := newTestEngineWithFeed(nil)
	ctx := context.Background()

	buy, err := eng.PlaceOrder(ctx, marketBuy("BTCUSDT", "0.1", "50000"), 0.02)
	require.NoError(t, err)
	require.NoError(t, eng.HandleFill(ctx, types.Fill{
		OrderID:  buy.ID,
		Symbol:   "BTCUSDT",
		Side:     types.SideBuy,
		Quantity: d("0.1"),
		Price:    d("50000"),
	}))

	sell, err := eng.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     types.SideSell,
		Type:     types.OrderTypeMarket,
		Quantity: d("0.1"),
		Price:    d("40000"),
	}, 0.02)
	require.NoError(t, err)
	require.NoError(t, eng.HandleFill(ctx, types.Fill{
		OrderID:  sell.ID,
		Symbol:   "BTCUSDT",
		Side:     types.SideSell,
		Quantity: d("0.1"),
		Price:    d("40000"),
	}))

	_, ok := pf.GetPosition("BTCUSDT")
	assert.False(t, ok, "fully offset position should be removed")

	assert.True(t, pf.AccountEquity().Equal(d("99000")),
		"equity should reflect the realized loss, got %s", pf.AccountEquity())
	assert.InDelta(t, 0.01, pf.GetDrawdownMetrics().CurrentDrawdown, 1e-9)

	report := rm.GetRiskReport()
	assert.True(t, report.DailyPnL.Equal(d("-1000")), "got %s", report.DailyPnL)
	assert.True(t, report.WeeklyPnL.Equal(d("-1000")))
}

func TestPlaceOrderSubscribesMarketData(t *testing.T) {
	feed := newStubFeed()
	eng, pf, _ := newTestEngineWithFeed(feed)
	ctx := context.Background()

	order, err := eng.PlaceOrder(ctx, marketBuy("BTCUSDT", "0.1", "50000"), 0.02)
	require.NoError(t, err)
	require.Equal(t, types.OrderStatusOpen, order.Status)

	tick, ok := feed.callbacks["BTCUSDT"]
	require.True(t, ok, "approved symbol should be subscribed on the feed")

	require.NoError(t, eng.HandleFill(ctx, types.Fill{
		OrderID:  order.ID,
		Symbol:   "BTCUSDT",
		Side:     types.SideBuy,
		Quantity: d("0.1"),
		Price:    d("50000"),
	}))

	// ticks mark the position and feed the breaker
	tick(&types.Ticker{Symbol: "BTCUSDT", Price: 50000, Timestamp: time.Now()})
	tick(&types.Ticker{Symbol: "BTCUSDT", Price: 40000, Timestamp: time.Now()})

	pos, ok := pf.GetPosition("BTCUSDT")
	require.True(t, ok)
	assert.True(t, pos.LastPrice.Equal(d("40000")))

	rejected, err := eng.PlaceOrder(ctx, marketBuy("BTCUSDT", "0.1", "40000"), 0.02)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusRejected, rejected.Status)
	assert.Contains(t, rejected.RejectReason, "Circuit breaker triggered for BTCUSDT")
}

func TestStartAndStopDriveFeedLifecycle(t *testing.T) {
	feed := newStubFeed()
	eng, _, _ := newTestEngineWithFeed(feed)

	require.NoError(t, eng.Start(context.Background()))
	assert.True(t, feed.started)

	eng.Stop()
	assert.True(t, feed.stopped)
}
