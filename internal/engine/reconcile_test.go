package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/riskcore/internal/exchange"
	"github.com/quantrail/riskcore/pkg/types"
)

type stubHistory struct {
	records []exchange.OrderRecord
	err     error
}

func (s *stubHistory) GetOrderHistory(context.Context, string, int) ([]exchange.OrderRecord, error) {
	return s.records, s.err
}

func recordFor(order *types.Order, status string) exchange.OrderRecord {
	return exchange.OrderRecord{
		OrderID:     order.ExchangeID,
		ClientOrdID: order.ID,
		Symbol:      order.Symbol,
		Side:        string(order.Side),
		Status:      status,
		Quantity:    order.Quantity,
		FilledQty:   order.FilledQuantity,
		CreatedAt:   order.CreatedAt,
	}
}

func TestReconcileAllMatched(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	order, err := eng.PlaceOrder(ctx, marketBuy("BTCUSDT", "0.1", "50000"), 0.02)
	require.NoError(t, err)
	require.NoError(t, eng.HandleFill(ctx, types.Fill{
		OrderID: order.ID, Symbol: "BTCUSDT", Side: types.SideBuy,
		Quantity: d("0.1"), Price: d("50000"),
	}))

	source := NewOrderSource(eng, &stubHistory{records: []exchange.OrderRecord{
		recordFor(order, "Filled"),
	}})

	result, err := source.ReconcileOrders(ctx, "daily")
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalOrders)
	assert.Equal(t, 1, result.MatchedOrders)
	assert.Zero(t, result.MismatchedOrders)
	assert.Empty(t, result.MissingOrders)
	assert.Empty(t, result.ExtraOrders)
	assert.False(t, result.AlertTriggered)
}

func TestReconcileMissingOnExchange(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	order, err := eng.PlaceOrder(ctx, marketBuy("BTCUSDT", "0.1", "50000"), 0.02)
	require.NoError(t, err)

	source := NewOrderSource(eng, &stubHistory{})

	result, err := source.ReconcileOrders(ctx, "daily")
	require.NoError(t, err)

	assert.Equal(t, []string{order.ID}, result.MissingOrders)
	assert.True(t, result.AlertTriggered)
}

func TestReconcileExtraOnExchange(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	source := NewOrderSource(eng, &stubHistory{records: []exchange.OrderRecord{{
		OrderID:     "ex-unknown",
		ClientOrdID: "not-ours",
		Symbol:      "BTCUSDT",
		Status:      "Filled",
		CreatedAt:   time.Now(),
	}}})

	result, err := source.ReconcileOrders(ctx, "daily")
	require.NoError(t, err)

	assert.Equal(t, []string{"ex-unknown"}, result.ExtraOrders)
	assert.True(t, result.AlertTriggered)
}

func TestReconcileStatusMismatch(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	// locally open, remotely cancelled
	order, err := eng.PlaceOrder(ctx, marketBuy("BTCUSDT", "0.1", "50000"), 0.02)
	require.NoError(t, err)

	source := NewOrderSource(eng, &stubHistory{records: []exchange.OrderRecord{
		recordFor(order, "Cancelled"),
	}})

	result, err := source.ReconcileOrders(ctx, "daily")
	require.NoError(t, err)

	assert.Equal(t, 1, result.MismatchedOrders)
	assert.InDelta(t, 1.0, result.MismatchPercentage, 1e-9)
	assert.True(t, result.AlertTriggered)
}

func TestReconcileSkipsRejectedOrders(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	// notional above the size cap, rejected before submission
	order, err := eng.PlaceOrder(ctx, marketBuy("BTCUSDT", "0.3", "50000"), 0.001)
	require.NoError(t, err)
	require.Equal(t, types.OrderStatusRejected, order.Status)

	source := NewOrderSource(eng, &stubHistory{})

	result, err := source.ReconcileOrders(ctx, "daily")
	require.NoError(t, err)

	assert.Zero(t, result.TotalOrders)
	assert.False(t, result.AlertTriggered)
}

func TestReconcileIgnoresRecordsBeforePeriod(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	source := NewOrderSource(eng, &stubHistory{records: []exchange.OrderRecord{{
		OrderID:     "ex-old",
		ClientOrdID: "old-client-id",
		Status:      "Filled",
		CreatedAt:   time.Now().Add(-48 * time.Hour),
	}}})

	result, err := source.ReconcileOrders(ctx, "daily")
	require.NoError(t, err)

	assert.Empty(t, result.ExtraOrders)
}

func TestReconcileHistoryFailurePropagates(t *testing.T) {
	eng, _, _ := newTestEngine()

	source := NewOrderSource(eng, &stubHistory{err: assert.AnError})

	result, err := source.ReconcileOrders(context.Background(), "daily")
	assert.Error(t, err)
	assert.Nil(t, result)
}
