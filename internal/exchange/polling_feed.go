package exchange

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quantrail/riskcore/internal/errors"
	"github.com/quantrail/riskcore/internal/logger"
	"github.com/quantrail/riskcore/pkg/types"
)

const defaultPollInterval = 15 * time.Second

// PollingFeed implements MarketDataFeed over the REST client by polling the
// latest price for every subscribed symbol at a fixed interval. Poll failures
// for one symbol are logged and do not stall the others.
type PollingFeed struct {
	client   Client
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	subs    map[string][]func(*types.Ticker)
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	now func() time.Time
}

// NewPollingFeed creates a polling feed over the given client
func NewPollingFeed(client Client, interval time.Duration, log *logger.Logger) *PollingFeed {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &PollingFeed{
		client:   client,
		interval: interval,
		log:      log,
		subs:     make(map[string][]func(*types.Ticker)),
		now:      time.Now,
	}
}

// SubscribeTicker registers a callback for the symbol's ticker updates
func (f *PollingFeed) SubscribeTicker(symbol string, callback func(*types.Ticker)) error {
	if symbol == "" {
		return errors.NewValidationError("market_data", "subscribe_ticker", "empty symbol")
	}
	if callback == nil {
		return errors.NewValidationError("market_data", "subscribe_ticker", "nil callback")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[symbol] = append(f.subs[symbol], callback)
	return nil
}

// Start launches the poll loop. Starting an already running feed is a no-op.
func (f *PollingFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	f.running = true
	f.mu.Unlock()

	go f.loop(loopCtx)

	if f.log != nil {
		f.log.Info("Market data feed started: poll interval %s", f.interval)
	}
	return nil
}

// Stop cancels the poll loop and waits for it to exit
func (f *PollingFeed) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	cancel := f.cancel
	done := f.done
	f.running = false
	f.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (f *PollingFeed) loop(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.poll(ctx)
		}
	}
}

// poll fetches the latest price for each subscribed symbol and fans the
// resulting ticker out to its callbacks
func (f *PollingFeed) poll(ctx context.Context) {
	f.mu.Lock()
	symbols := make([]string, 0, len(f.subs))
	for symbol := range f.subs {
		symbols = append(symbols, symbol)
	}
	f.mu.Unlock()
	sort.Strings(symbols)

	for _, symbol := range symbols {
		price, err := f.client.GetLatestPrice(ctx, symbol)
		if err != nil {
			if f.log != nil {
				f.log.LogWarning("market data", "price poll failed for %s: %v", symbol, err)
			}
			continue
		}

		tick := &types.Ticker{Symbol: symbol, Price: price, Timestamp: f.now()}
		f.mu.Lock()
		callbacks := append([]func(*types.Ticker){}, f.subs[symbol]...)
		f.mu.Unlock()
		for _, cb := range callbacks {
			cb(tick)
		}
	}
}
