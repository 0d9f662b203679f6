package safety

import (
	"sync"
	"time"
)

// CircuitBreakerState represents the state of a price circuit breaker
type CircuitBreakerState int

const (
	StateNormal CircuitBreakerState = iota
	StateTriggered
)

// String returns the string representation of the circuit breaker state
func (s CircuitBreakerState) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateTriggered:
		return "TRIGGERED"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for a price circuit breaker
type CircuitBreakerConfig struct {
	Threshold float64       // Fractional price move that trips the breaker
	Cooldown  time.Duration // Time the breaker stays tripped
}

// CircuitBreaker detects abrupt price moves for a single symbol and blocks
// new orders for a cooldown window.
//
// NORMAL -> TRIGGERED -> (cooldown elapses) -> NORMAL. The reset is lazy:
// it happens on the next IsTriggered call after the cooldown has elapsed.
type CircuitBreaker struct {
	symbol         string
	config         CircuitBreakerConfig
	referencePrice float64
	triggered      bool
	triggerTime    time.Time
	mutex          sync.Mutex

	// now is swapped out in tests
	now func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker for the given symbol
func NewCircuitBreaker(symbol string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.Threshold == 0 {
		config.Threshold = 0.10
	}
	if config.Cooldown == 0 {
		config.Cooldown = 30 * time.Minute
	}

	return &CircuitBreaker{
		symbol: symbol,
		config: config,
		now:    time.Now,
	}
}

// UpdatePrice feeds a new price observation into the breaker. The very first
// observation only establishes the reference price and can never trigger.
func (cb *CircuitBreaker) UpdatePrice(newPrice float64) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.referencePrice == 0 {
		cb.referencePrice = newPrice
		return
	}

	move := newPrice - cb.referencePrice
	if move < 0 {
		move = -move
	}

	if move/cb.referencePrice >= cb.config.Threshold {
		cb.triggered = true
		cb.triggerTime = cb.now()
	}

	cb.referencePrice = newPrice
}

// IsTriggered reports whether the breaker currently blocks orders. A breaker
// whose cooldown has elapsed is reset here rather than by a background timer.
func (cb *CircuitBreaker) IsTriggered() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.triggered && cb.now().Sub(cb.triggerTime) >= cb.config.Cooldown {
		cb.triggered = false
		cb.triggerTime = time.Time{}
	}

	return cb.triggered
}

// ForceReset unconditionally clears the triggered state
func (cb *CircuitBreaker) ForceReset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.triggered = false
	cb.triggerTime = time.Time{}
}

// CooldownRemaining returns how long the breaker will keep blocking orders,
// or zero if it is not triggered.
func (cb *CircuitBreaker) CooldownRemaining() time.Duration {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.triggered {
		return 0
	}

	remaining := cb.config.Cooldown - cb.now().Sub(cb.triggerTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Symbol returns the symbol this breaker guards
func (cb *CircuitBreaker) Symbol() string {
	return cb.symbol
}

// Status is a read-only snapshot of a breaker for reporting
type Status struct {
	Symbol            string        `json:"symbol"`
	State             string        `json:"state"`
	Threshold         float64       `json:"threshold"`
	ReferencePrice    float64       `json:"reference_price"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
}

// GetStatus returns a snapshot of the breaker state
func (cb *CircuitBreaker) GetStatus() Status {
	triggered := cb.IsTriggered()

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	state := StateNormal
	var remaining time.Duration
	if triggered {
		state = StateTriggered
		remaining = cb.config.Cooldown - cb.now().Sub(cb.triggerTime)
		if remaining < 0 {
			remaining = 0
		}
	}

	return Status{
		Symbol:            cb.symbol,
		State:             state.String(),
		Threshold:         cb.config.Threshold,
		ReferencePrice:    cb.referencePrice,
		CooldownRemaining: remaining,
	}
}

// CircuitBreakerRegistry manages the per-symbol circuit breakers
type CircuitBreakerRegistry struct {
	breakers map[string]*CircuitBreaker
	mutex    sync.RWMutex
}

// NewCircuitBreakerRegistry creates an empty registry
func NewCircuitBreakerRegistry() *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Register creates a breaker for the symbol, replacing any existing one
func (r *CircuitBreakerRegistry) Register(symbol string, config CircuitBreakerConfig) *CircuitBreaker {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cb := NewCircuitBreaker(symbol, config)
	r.breakers[symbol] = cb
	return cb
}

// Get returns the breaker for a symbol if one is registered
func (r *CircuitBreakerRegistry) Get(symbol string) (*CircuitBreaker, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	cb, exists := r.breakers[symbol]
	return cb, exists
}

// UpdatePrice routes a price observation to the symbol's breaker, if any
func (r *CircuitBreakerRegistry) UpdatePrice(symbol string, price float64) {
	if cb, exists := r.Get(symbol); exists {
		cb.UpdatePrice(price)
	}
}

// GetAllStatuses returns a snapshot of every registered breaker
func (r *CircuitBreakerRegistry) GetAllStatuses() map[string]Status {
	r.mutex.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mutex.RUnlock()

	statuses := make(map[string]Status, len(breakers))
	for _, cb := range breakers {
		statuses[cb.Symbol()] = cb.GetStatus()
	}
	return statuses
}

// TriggeredSymbols returns the symbols whose breakers currently block orders
func (r *CircuitBreakerRegistry) TriggeredSymbols() []string {
	r.mutex.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mutex.RUnlock()

	var triggered []string
	for _, cb := range breakers {
		if cb.IsTriggered() {
			triggered = append(triggered, cb.Symbol())
		}
	}
	return triggered
}
