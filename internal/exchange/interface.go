package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantrail/riskcore/pkg/types"
)

// OrderRequest holds the parameters for placing an order
type OrderRequest struct {
	Symbol      string
	Side        types.OrderSide
	Type        types.OrderType
	Quantity    decimal.Decimal
	Price       decimal.Decimal // ignored for market orders
	ClientOrdID string
}

// OrderResult is the exchange acknowledgement of a placed order
type OrderResult struct {
	OrderID string
	Status  string
}

// Client is the narrow exchange interface the engine depends on.
// Implementations must return categorized errors (internal/errors) so the
// engine can distinguish auth, rate-limit, insufficient-funds, invalid-order,
// market-closed and connection failures.
type Client interface {
	GetName() string
	TestConnection(ctx context.Context) error

	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error

	GetBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// OrderRecord is the exchange-side view of an order, used to reconcile
// local order state against what the exchange actually executed
type OrderRecord struct {
	OrderID     string
	ClientOrdID string
	Symbol      string
	Side        string
	Status      string
	Quantity    decimal.Decimal
	FilledQty   decimal.Decimal
	CreatedAt   time.Time
}

// OrderHistory fetches past orders from the exchange. An empty symbol
// requests all symbols.
type OrderHistory interface {
	GetOrderHistory(ctx context.Context, symbol string, limit int) ([]OrderRecord, error)
}

// VolatilitySource provides annualized historical volatility per symbol
type VolatilitySource interface {
	GetHistoricalVolatility(ctx context.Context, symbol string) (float64, error)
}

// MarketDataFeed delivers ticker updates to subscribers. The transport
// behind it (websocket, polling) is an implementation detail.
type MarketDataFeed interface {
	SubscribeTicker(symbol string, callback func(*types.Ticker)) error
	Start(ctx context.Context) error
	Stop() error
}
