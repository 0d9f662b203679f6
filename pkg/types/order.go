package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType distinguishes market and limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus tracks the lifecycle of an order.
//
// PENDING -> OPEN -> {PARTIALLY_FILLED -> FILLED | CANCELLED | REJECTED}
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// Order represents a trading order as tracked by the engine.
type Order struct {
	ID             string
	ExchangeID     string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	Quantity       decimal.Decimal
	Price          decimal.Decimal
	StopLossPct    float64 // 0 when no stop loss is configured
	Status         OrderStatus
	RejectReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	FilledQuantity decimal.Decimal
	FillPrice      decimal.Decimal
}

// Notional returns the dollar value of the order (quantity x price).
func (o *Order) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.Price)
}

// Fill represents a fill notification from the exchange.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      OrderSide
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Timestamp time.Time
	Partial   bool
}

// Balance represents an asset balance on the exchange.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}
