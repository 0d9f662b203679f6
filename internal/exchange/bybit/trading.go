package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"

	"github.com/quantrail/riskcore/internal/exchange"
	"github.com/quantrail/riskcore/pkg/types"
)

// CreateOrder places a new order on the exchange
func (c *Client) CreateOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	side := "Buy"
	if req.Side == types.SideSell {
		side = "Sell"
	}

	orderType := "Market"
	if req.Type == types.OrderTypeLimit {
		orderType = "Limit"
	}

	apiParams := map[string]interface{}{
		"category":  c.category,
		"symbol":    req.Symbol,
		"side":      side,
		"orderType": orderType,
		"qty":       req.Quantity.String(),
	}

	if req.Type == types.OrderTypeLimit {
		apiParams["price"] = req.Price.String()
		apiParams["timeInForce"] = "GTC"
	}
	if req.ClientOrdID != "" {
		apiParams["orderLinkId"] = req.ClientOrdID
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(apiParams).PlaceOrder(ctx)
	if err != nil {
		return nil, classifyTransportError(err, "CreateOrder")
	}

	return c.parseOrderResponse(result)
}

// CancelOrder cancels an existing order
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		return classifyTransportError(err, "CancelOrder")
	}

	if result != nil && result.RetCode != 0 {
		return classify(result.RetCode, result.RetMsg, "CancelOrder")
	}

	return nil
}

// GetOrderHistory retrieves past orders for reconciliation. Bybit returns
// the most recent orders first.
func (c *Client) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]exchange.OrderRecord, error) {
	params := map[string]interface{}{
		"category": c.category,
	}
	if symbol != "" {
		params["symbol"] = symbol
	}
	if limit > 0 {
		params["limit"] = limit
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return nil, classifyTransportError(err, "GetOrderHistory")
	}

	return c.parseOrderHistoryResponse(result)
}

func (c *Client) parseOrderHistoryResponse(response interface{}) ([]exchange.OrderRecord, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}

	if serverResp.RetCode != 0 {
		return nil, classify(serverResp.RetCode, serverResp.RetMsg, "GetOrderHistory")
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var listResult struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
			Symbol      string `json:"symbol"`
			Side        string `json:"side"`
			OrderStatus string `json:"orderStatus"`
			Qty         string `json:"qty"`
			CumExecQty  string `json:"cumExecQty"`
			CreatedTime string `json:"createdTime"`
		} `json:"list"`
	}

	if err := json.Unmarshal(resultBytes, &listResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order list result: %w", err)
	}

	records := make([]exchange.OrderRecord, 0, len(listResult.List))
	for _, item := range listResult.List {
		qty, _ := decimal.NewFromString(item.Qty)
		filled, _ := decimal.NewFromString(item.CumExecQty)
		records = append(records, exchange.OrderRecord{
			OrderID:     item.OrderID,
			ClientOrdID: item.OrderLinkID,
			Symbol:      item.Symbol,
			Side:        item.Side,
			Status:      item.OrderStatus,
			Quantity:    qty,
			FilledQty:   filled,
			CreatedAt:   time.UnixMilli(parseInt64(item.CreatedTime)),
		})
	}

	return records, nil
}

func (c *Client) parseOrderResponse(response interface{}) (*exchange.OrderResult, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}

	if serverResp.RetCode != 0 {
		return nil, classify(serverResp.RetCode, serverResp.RetMsg, "CreateOrder")
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var orderResult struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}

	if err := json.Unmarshal(resultBytes, &orderResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order result: %w", err)
	}

	if orderResult.OrderID == "" {
		return nil, fmt.Errorf("order response missing orderId")
	}

	return &exchange.OrderResult{
		OrderID: orderResult.OrderID,
		Status:  "accepted",
	}, nil
}
