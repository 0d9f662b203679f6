package portfolio

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// PriceHistoryProvider supplies daily return series per symbol for
// correlation estimation. The production implementation should be backed by
// real historical prices; SyntheticHistoryProvider is a stand-in that samples
// correlated returns from a shared market factor.
type PriceHistoryProvider interface {
	GetDailyReturns(ctx context.Context, symbol string, days int) ([]float64, error)
}

// SyntheticHistoryProvider generates mock correlated return series. Each
// symbol's returns share a common market component, so pairwise correlations
// come out positive and plausible. This is a placeholder data source, not a
// market model.
type SyntheticHistoryProvider struct {
	mu   sync.Mutex
	rng  *rand.Rand
	days int

	// cached market factor so all symbols sampled in one refresh share it
	marketFactor []float64
}

// NewSyntheticHistoryProvider creates a synthetic provider with a fixed seed
// so correlation tests are reproducible.
func NewSyntheticHistoryProvider(seed int64) *SyntheticHistoryProvider {
	return &SyntheticHistoryProvider{
		rng:  rand.New(rand.NewSource(seed)),
		days: 60,
	}
}

// GetDailyReturns returns a synthetic daily return series for the symbol
func (s *SyntheticHistoryProvider) GetDailyReturns(_ context.Context, symbol string, days int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.marketFactor) != days {
		s.marketFactor = make([]float64, days)
		for i := range s.marketFactor {
			s.marketFactor[i] = s.rng.NormFloat64() * 0.02
		}
	}

	// Per-symbol idiosyncratic component seeded off the symbol name so the
	// series is stable across calls within one process.
	var symbolSeed int64
	for _, ch := range symbol {
		symbolSeed = symbolSeed*31 + int64(ch)
	}
	symbolRng := rand.New(rand.NewSource(symbolSeed))

	returns := make([]float64, days)
	for i := range returns {
		returns[i] = 0.6*s.marketFactor[i] + 0.4*symbolRng.NormFloat64()*0.02
	}
	return returns, nil
}

// correlationRefreshInterval throttles matrix rebuilds
const correlationRefreshInterval = time.Hour

// CorrelationMatrix holds pairwise correlations between portfolio symbols,
// refreshed at most once per refresh interval.
type CorrelationMatrix struct {
	mu          sync.RWMutex
	provider    PriceHistoryProvider
	matrix      map[string]map[string]float64
	lastRefresh time.Time
	lookback    int

	// now is swapped out in tests
	now func() time.Time
}

// NewCorrelationMatrix creates a correlation matrix over the given provider
func NewCorrelationMatrix(provider PriceHistoryProvider) *CorrelationMatrix {
	return &CorrelationMatrix{
		provider: provider,
		matrix:   make(map[string]map[string]float64),
		lookback: 60,
		now:      time.Now,
	}
}

// Refresh rebuilds the matrix for the given symbols if the refresh interval
// has elapsed. Errors from the provider leave the previous matrix in place.
func (cm *CorrelationMatrix) Refresh(ctx context.Context, symbols []string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if len(symbols) < 2 {
		return
	}
	if !cm.lastRefresh.IsZero() && cm.now().Sub(cm.lastRefresh) < correlationRefreshInterval {
		return
	}

	series := make(map[string][]float64, len(symbols))
	for _, sym := range symbols {
		returns, err := cm.provider.GetDailyReturns(ctx, sym, cm.lookback)
		if err != nil {
			return
		}
		series[sym] = returns
	}

	matrix := make(map[string]map[string]float64, len(symbols))
	for _, a := range symbols {
		matrix[a] = make(map[string]float64, len(symbols))
		for _, b := range symbols {
			if a == b {
				matrix[a][b] = 1.0
				continue
			}
			matrix[a][b] = pearson(series[a], series[b])
		}
	}

	cm.matrix = matrix
	cm.lastRefresh = cm.now()
}

// Correlation returns the correlation between two symbols, or 0 when either
// symbol is missing from the matrix.
func (cm *CorrelationMatrix) Correlation(a, b string) float64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if row, ok := cm.matrix[a]; ok {
		if c, ok := row[b]; ok {
			return c
		}
	}
	return 0
}

// AverageCorrelation returns the mean pairwise correlation of the matrix
func (cm *CorrelationMatrix) AverageCorrelation() float64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	sum := 0.0
	count := 0
	for a, row := range cm.matrix {
		for b, c := range row {
			if a < b {
				sum += c
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// pearson computes the Pearson correlation coefficient of two equal-length series
func pearson(x, y []float64) float64 {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0
	}

	var meanX, meanY float64
	for i := 0; i < n; i++ {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}
