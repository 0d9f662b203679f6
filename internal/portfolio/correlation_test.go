package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPearson(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
		y    []float64
		want float64
	}{
		{"perfect positive", []float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}, 1.0},
		{"perfect negative", []float64{1, 2, 3, 4}, []float64{8, 6, 4, 2}, -1.0},
		{"constant series", []float64{1, 1, 1}, []float64{1, 2, 3}, 0.0},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0.0},
		{"empty", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, pearson(tt.x, tt.y), 1e-9)
		})
	}
}

func TestCorrelationMatrixRefresh(t *testing.T) {
	cm := NewCorrelationMatrix(NewSyntheticHistoryProvider(7))
	ctx := context.Background()

	cm.Refresh(ctx, []string{"BTCUSDT", "ETHUSDT"})

	c := cm.Correlation("BTCUSDT", "ETHUSDT")
	assert.NotZero(t, c)
	assert.Equal(t, c, cm.Correlation("ETHUSDT", "BTCUSDT"))
	assert.Equal(t, 1.0, cm.Correlation("BTCUSDT", "BTCUSDT"))

	// unknown symbol falls back to zero
	assert.Equal(t, 0.0, cm.Correlation("BTCUSDT", "XRPUSDT"))
}

func TestCorrelationMatrixThrottle(t *testing.T) {
	cm := NewCorrelationMatrix(NewSyntheticHistoryProvider(7))
	ctx := context.Background()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	cm.now = func() time.Time { return now }

	cm.Refresh(ctx, []string{"BTCUSDT", "ETHUSDT"})
	first := cm.lastRefresh

	// within the interval a refresh is skipped
	now = now.Add(30 * time.Minute)
	cm.Refresh(ctx, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	assert.Equal(t, first, cm.lastRefresh)
	assert.Equal(t, 0.0, cm.Correlation("SOLUSDT", "BTCUSDT"))

	// after the interval it rebuilds with the new symbol set
	now = now.Add(45 * time.Minute)
	cm.Refresh(ctx, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	assert.NotEqual(t, first, cm.lastRefresh)
	assert.NotZero(t, cm.Correlation("SOLUSDT", "BTCUSDT"))
}

func TestCorrelationMatrixSkipsSingleSymbol(t *testing.T) {
	cm := NewCorrelationMatrix(NewSyntheticHistoryProvider(7))

	cm.Refresh(context.Background(), []string{"BTCUSDT"})
	assert.True(t, cm.lastRefresh.IsZero())
}
