package bybit

import (
	"testing"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/riskcore/internal/errors"
)

func testClient() *Client {
	return NewClient(Config{APIKey: "k", APISecret: "s", Testnet: true})
}

func TestParseOrderResponse(t *testing.T) {
	c := testClient()

	result, err := c.parseOrderResponse(&bybit_api.ServerResponse{
		RetCode: 0,
		Result: map[string]interface{}{
			"orderId":     "1234567890",
			"orderLinkId": "client-abc",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "1234567890", result.OrderID)
}

func TestParseOrderResponseAPIError(t *testing.T) {
	c := testClient()

	_, err := c.parseOrderResponse(&bybit_api.ServerResponse{
		RetCode: 110007,
		RetMsg:  "ab not enough for new order",
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCategoryInsufficientFunds, errors.CategoryOf(err))
}

func TestParseOrderResponseMissingID(t *testing.T) {
	c := testClient()

	_, err := c.parseOrderResponse(&bybit_api.ServerResponse{
		RetCode: 0,
		Result:  map[string]interface{}{},
	})
	assert.Error(t, err)
}

func TestParseOrderHistoryResponse(t *testing.T) {
	c := testClient()

	records, err := c.parseOrderHistoryResponse(&bybit_api.ServerResponse{
		RetCode: 0,
		Result: map[string]interface{}{
			"list": []map[string]interface{}{
				{
					"orderId":     "ex-1",
					"orderLinkId": "local-1",
					"symbol":      "BTCUSDT",
					"side":        "Buy",
					"orderStatus": "Filled",
					"qty":         "0.5",
					"cumExecQty":  "0.5",
					"createdTime": "1756500000000",
				},
				{
					"orderId":     "ex-2",
					"orderLinkId": "local-2",
					"symbol":      "ETHUSDT",
					"side":        "Sell",
					"orderStatus": "Cancelled",
					"qty":         "2",
					"cumExecQty":  "0",
					"createdTime": "1756500060000",
				},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "ex-1", records[0].OrderID)
	assert.Equal(t, "local-1", records[0].ClientOrdID)
	assert.Equal(t, "Filled", records[0].Status)
	assert.True(t, records[0].Quantity.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, records[0].FilledQty.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, time.UnixMilli(1756500000000), records[0].CreatedAt)

	assert.Equal(t, "Cancelled", records[1].Status)
	assert.True(t, records[1].FilledQty.IsZero())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		code     int
		category errors.ErrorCategory
	}{
		{errCodeInvalidAPIKey, errors.ErrorCategoryCredentials},
		{errCodeInvalidSignature, errors.ErrorCategoryCredentials},
		{errCodeRateLimitExceeded, errors.ErrorCategoryRateLimit},
		{errCodeInsufficientBalance, errors.ErrorCategoryInsufficientFunds},
		{errCodeMarketClosed, errors.ErrorCategoryMarketClosed},
		{errCodeInvalidQuantity, errors.ErrorCategoryInvalidOrder},
		{99999, errors.ErrorCategoryExchange},
	}

	for _, tt := range tests {
		terr := classify(tt.code, "msg", "CreateOrder")
		assert.Equal(t, tt.category, terr.Category, "code %d", tt.code)
	}

	assert.Equal(t, time.Second, classify(errCodeRateLimitExceeded, "msg", "CreateOrder").RetryAfter)
}
