package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_FirstObservationNeverTriggers(t *testing.T) {
	tests := []struct {
		name  string
		price float64
	}{
		{"normal price", 50000.0},
		{"tiny price", 0.00001},
		{"huge price", 1e9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker("BTCUSDT", CircuitBreakerConfig{Threshold: 0.05, Cooldown: time.Minute})
			cb.UpdatePrice(tt.price)
			assert.False(t, cb.IsTriggered())
		})
	}
}

func TestCircuitBreaker_TriggersOnAbruptMove(t *testing.T) {
	cb := NewCircuitBreaker("BTCUSDT", CircuitBreakerConfig{Threshold: 0.10, Cooldown: time.Minute})

	cb.UpdatePrice(100.0)
	cb.UpdatePrice(109.0) // 9% move, below threshold
	assert.False(t, cb.IsTriggered())

	cb.UpdatePrice(120.0) // ~10.1% move from 109
	assert.True(t, cb.IsTriggered())
}

func TestCircuitBreaker_ExactThresholdTriggers(t *testing.T) {
	cb := NewCircuitBreaker("ETHUSDT", CircuitBreakerConfig{Threshold: 0.10, Cooldown: time.Minute})

	cb.UpdatePrice(100.0)
	cb.UpdatePrice(110.0) // exactly 10%
	assert.True(t, cb.IsTriggered())
}

func TestCircuitBreaker_DownMoveTriggers(t *testing.T) {
	cb := NewCircuitBreaker("ETHUSDT", CircuitBreakerConfig{Threshold: 0.10, Cooldown: time.Minute})

	cb.UpdatePrice(100.0)
	cb.UpdatePrice(89.0)
	assert.True(t, cb.IsTriggered())
}

func TestCircuitBreaker_LazyCooldownReset(t *testing.T) {
	cb := NewCircuitBreaker("BTCUSDT", CircuitBreakerConfig{Threshold: 0.05, Cooldown: time.Minute})

	current := time.Now()
	cb.now = func() time.Time { return current }

	cb.UpdatePrice(100.0)
	cb.UpdatePrice(200.0)
	require.True(t, cb.IsTriggered())
	assert.Equal(t, time.Minute, cb.CooldownRemaining())

	// Half the cooldown: still triggered
	current = current.Add(30 * time.Second)
	assert.True(t, cb.IsTriggered())
	assert.Equal(t, 30*time.Second, cb.CooldownRemaining())

	// Cooldown elapsed: resets without any explicit call
	current = current.Add(30 * time.Second)
	assert.False(t, cb.IsTriggered())
	assert.Equal(t, time.Duration(0), cb.CooldownRemaining())
}

func TestCircuitBreaker_ForceReset(t *testing.T) {
	cb := NewCircuitBreaker("BTCUSDT", CircuitBreakerConfig{Threshold: 0.05, Cooldown: time.Hour})

	cb.UpdatePrice(100.0)
	cb.UpdatePrice(200.0)
	require.True(t, cb.IsTriggered())

	cb.ForceReset()
	assert.False(t, cb.IsTriggered())
	assert.Equal(t, time.Duration(0), cb.CooldownRemaining())
}

func TestCircuitBreaker_ZeroReferenceSkipsEvaluation(t *testing.T) {
	cb := NewCircuitBreaker("BTCUSDT", CircuitBreakerConfig{Threshold: 0.05, Cooldown: time.Minute})

	cb.UpdatePrice(100.0)
	cb.UpdatePrice(0.0) // bad tick; must not divide by zero on the next update
	cb.UpdatePrice(100.0)
	assert.False(t, cb.IsTriggered())
}

func TestCircuitBreakerRegistry(t *testing.T) {
	reg := NewCircuitBreakerRegistry()

	reg.Register("BTCUSDT", CircuitBreakerConfig{Threshold: 0.05, Cooldown: time.Minute})
	reg.Register("ETHUSDT", CircuitBreakerConfig{Threshold: 0.05, Cooldown: time.Minute})

	_, ok := reg.Get("BTCUSDT")
	require.True(t, ok)
	_, ok = reg.Get("SOLUSDT")
	assert.False(t, ok)

	reg.UpdatePrice("BTCUSDT", 100.0)
	reg.UpdatePrice("BTCUSDT", 200.0)
	reg.UpdatePrice("SOLUSDT", 100.0) // unregistered symbol is a no-op

	assert.Equal(t, []string{"BTCUSDT"}, reg.TriggeredSymbols())

	statuses := reg.GetAllStatuses()
	assert.Len(t, statuses, 2)
	assert.Equal(t, "TRIGGERED", statuses["BTCUSDT"].State)
	assert.Equal(t, "NORMAL", statuses["ETHUSDT"].State)
}

func TestCircuitBreakerRegistry_ReRegisterReplaces(t *testing.T) {
	reg := NewCircuitBreakerRegistry()

	reg.Register("BTCUSDT", CircuitBreakerConfig{Threshold: 0.05, Cooldown: time.Minute})
	reg.UpdatePrice("BTCUSDT", 100.0)
	reg.UpdatePrice("BTCUSDT", 200.0)

	reg.Register("BTCUSDT", CircuitBreakerConfig{Threshold: 0.05, Cooldown: time.Minute})
	cb, _ := reg.Get("BTCUSDT")
	assert.False(t, cb.IsTriggered())
}
