package bybit

import (
	"context"
	"fmt"
	"math"
)

// volatilityLookbackDays is the window of daily candles used for the
// historical volatility estimate.
const volatilityLookbackDays = 30

// GetHistoricalVolatility returns the annualized volatility of daily log
// returns over the lookback window.
func (c *Client) GetHistoricalVolatility(ctx context.Context, symbol string) (float64, error) {
	klines, err := c.GetKlines(ctx, symbol, Interval1d, volatilityLookbackDays+1)
	if err != nil {
		return 0, err
	}

	if len(klines) < 2 {
		return 0, fmt.Errorf("insufficient kline history for %s: got %d candles", symbol, len(klines))
	}

	var returns []float64
	for i := 1; i < len(klines); i++ {
		prev := klines[i-1].ClosePrice
		curr := klines[i].ClosePrice
		if prev <= 0 || curr <= 0 {
			continue
		}
		returns = append(returns, math.Log(curr/prev))
	}

	if len(returns) < 2 {
		return 0, fmt.Errorf("insufficient usable returns for %s", symbol)
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	// Annualize daily volatility with sqrt(365): crypto trades every day
	return math.Sqrt(variance) * math.Sqrt(365), nil
}
