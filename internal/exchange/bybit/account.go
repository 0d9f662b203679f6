package bybit

import (
	"context"
	"encoding/json"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
)

// GetBalance returns the free wallet balance for an asset on the unified account
func (c *Client) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
		"coin":        asset,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return decimal.Zero, classifyTransportError(err, "GetBalance")
	}

	return c.parseBalanceResponse(result, asset)
}

func (c *Client) parseBalanceResponse(response interface{}, asset string) (decimal.Decimal, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid response type")
	}

	if serverResp.RetCode != 0 {
		return decimal.Zero, classify(serverResp.RetCode, serverResp.RetMsg, "GetBalance")
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to marshal result: %w", err)
	}

	var walletResult struct {
		List []struct {
			AccountType string `json:"accountType"`
			Coin        []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
			} `json:"coin"`
		} `json:"list"`
	}

	if err := json.Unmarshal(resultBytes, &walletResult); err != nil {
		return decimal.Zero, fmt.Errorf("failed to unmarshal wallet result: %w", err)
	}

	for _, account := range walletResult.List {
		for _, coin := range account.Coin {
			if coin.Coin == asset {
				balance, err := decimal.NewFromString(coin.WalletBalance)
				if err != nil {
					return decimal.Zero, fmt.Errorf("invalid balance %q for %s: %w", coin.WalletBalance, asset, err)
				}
				return balance, nil
			}
		}
	}

	return decimal.Zero, nil
}
