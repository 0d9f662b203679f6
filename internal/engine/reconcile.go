package engine

import (
	"context"
	"sort"
	"time"

	"github.com/quantrail/riskcore/internal/exchange"
	"github.com/quantrail/riskcore/internal/reconciliation"
	"github.com/quantrail/riskcore/pkg/types"
)

const historyFetchLimit = 200

// OrderSource reconciles the engine's local order book against the
// exchange's order history. It implements reconciliation.Source.
type OrderSource struct {
	engine  *Engine
	history exchange.OrderHistory

	now func() time.Time
}

// NewOrderSource creates a reconciliation source backed by the engine's
// tracked orders and the exchange order history API
func NewOrderSource(eng *Engine, history exchange.OrderHistory) *OrderSource {
	return &OrderSource{
		engine:  eng,
		history: history,
		now:     time.Now,
	}
}

// ReconcileOrders compares local orders created within the period against
// the exchange's records. A local order missing remotely, a remote order
// unknown locally, and status or fill disagreements all count against the
// match rate.
func (s *OrderSource) ReconcileOrders(ctx context.Context, period string) (*reconciliation.Result, error) {
	cutoff := s.now().Add(-periodDuration(period))

	remote, err := s.history.GetOrderHistory(ctx, "", historyFetchLimit)
	if err != nil {
		return nil, err
	}

	byClientID := make(map[string]exchange.OrderRecord, len(remote))
	for _, rec := range remote {
		if rec.ClientOrdID != "" {
			byClientID[rec.ClientOrdID] = rec
		}
	}

	result := &reconciliation.Result{TimePeriod: period}
	seen := make(map[string]bool)

	for _, order := range s.engine.OrdersSince(cutoff) {
		// orders that never reached the exchange have nothing to reconcile
		if order.ExchangeID == "" {
			continue
		}
		result.TotalOrders++

		rec, ok := byClientID[order.ID]
		if !ok {
			result.MissingOrders = append(result.MissingOrders, order.ID)
			continue
		}
		seen[order.ID] = true

		if ordersAgree(order, rec) {
			result.MatchedOrders++
		} else {
			result.MismatchedOrders++
		}
	}

	for _, rec := range remote {
		if rec.CreatedAt.Before(cutoff) {
			continue
		}
		if rec.ClientOrdID == "" || seen[rec.ClientOrdID] {
			continue
		}
		if _, known := s.engine.GetOrder(rec.ClientOrdID); !known {
			result.ExtraOrders = append(result.ExtraOrders, rec.OrderID)
		}
	}

	sort.Strings(result.MissingOrders)
	sort.Strings(result.ExtraOrders)

	if result.TotalOrders > 0 {
		result.MismatchPercentage = float64(result.MismatchedOrders) / float64(result.TotalOrders)
	}
	result.AlertTriggered = result.MismatchedOrders > 0 ||
		len(result.MissingOrders) > 0 || len(result.ExtraOrders) > 0

	return result, nil
}

// ordersAgree checks that the exchange record is consistent with the local
// order state. Fill quantity comparisons only apply to terminal states
// since in-flight orders legitimately disagree for a moment.
func ordersAgree(order *types.Order, rec exchange.OrderRecord) bool {
	switch order.Status {
	case types.OrderStatusFilled:
		return remoteFilled(rec.Status) && rec.FilledQty.Equal(order.FilledQuantity)
	case types.OrderStatusCancelled:
		return rec.Status == "Cancelled" || rec.Status == "PartiallyFilledCanceled"
	case types.OrderStatusOpen:
		return rec.Status == "New" || rec.Status == "PartiallyFilled"
	case types.OrderStatusPartiallyFilled:
		return rec.Status == "PartiallyFilled"
	default:
		return false
	}
}

func remoteFilled(status string) bool {
	return status == "Filled" || status == "PartiallyFilled"
}

func periodDuration(period string) time.Duration {
	switch period {
	case "hourly":
		return time.Hour
	case "weekly":
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
