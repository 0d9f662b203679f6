package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

type HealthChecker struct {
	mu            sync.RWMutex
	lastOrder     time.Time
	lastReconcile time.Time
	halted        bool
	haltReason    string
	isConnected   bool
	errors        []string
}

type HealthStatus struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	LastOrder     time.Time `json:"last_order"`
	LastReconcile time.Time `json:"last_reconcile"`
	Halted        bool      `json:"halted"`
	HaltReason    string    `json:"halt_reason,omitempty"`
	IsConnected   bool      `json:"is_connected"`
	Uptime        string    `json:"uptime"`
	Errors        []string  `json:"errors,omitempty"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		errors: make([]string, 0),
	}
}

// RecordOrder marks the time of the last order that passed validation
func (h *HealthChecker) RecordOrder() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastOrder = time.Now()
}

// RecordReconciliation marks the time of the last reconciliation run
func (h *HealthChecker) RecordReconciliation() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastReconcile = time.Now()
}

// SetConnected records exchange connectivity state
func (h *HealthChecker) SetConnected(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.isConnected = connected
}

// SetHalted records the trading halt state for the health report
func (h *HealthChecker) SetHalted(halted bool, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.halted = halted
	h.haltReason = reason
}

// AddError appends an error to the health report, keeping the last 20
func (h *HealthChecker) AddError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 20 {
		h.errors = h.errors[len(h.errors)-20:]
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if !h.isConnected || h.halted {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if len(h.errors) > 0 {
		status = "unhealthy"
		code = http.StatusInternalServerError
	}

	health := HealthStatus{
		Status:        status,
		Timestamp:     time.Now(),
		LastOrder:     h.lastOrder,
		LastReconcile: h.lastReconcile,
		Halted:        h.halted,
		HaltReason:    h.haltReason,
		IsConnected:   h.isConnected,
		Uptime:        time.Since(startTime).String(),
		Errors:        h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}
