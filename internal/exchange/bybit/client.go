package bybit

import (
	"context"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// Client wraps the Bybit API client behind the exchange.Client interface
type Client struct {
	httpClient *bybit_api.Client
	category   string
	testnet    bool
	demo       bool
}

// Config holds the configuration for the Bybit client
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Demo      bool   // Demo trading environment
	Category  string // "spot" or "linear", defaults to "spot"
}

// NewClient creates a new Bybit client
func NewClient(config Config) *Client {
	var baseURL string
	if config.Demo {
		// Demo trading environment (paper trading)
		baseURL = "https://api-demo.bybit.com"
	} else if config.Testnet {
		baseURL = bybit_api.TESTNET
	} else {
		baseURL = bybit_api.MAINNET
	}

	category := config.Category
	if category == "" {
		category = "spot"
	}

	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	return &Client{
		httpClient: httpClient,
		category:   category,
		testnet:    config.Testnet,
		demo:       config.Demo,
	}
}

// GetName returns the exchange name
func (c *Client) GetName() string {
	return "bybit"
}

// TestConnection probes exchange reachability with a lightweight public
// call, retrying transient failures before giving up
func (c *Client) TestConnection(ctx context.Context) error {
	return c.Retry(ctx, func() error {
		_, err := c.GetLatestPrice(ctx, "BTCUSDT")
		return err
	})
}
