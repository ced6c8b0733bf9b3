package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/system"
)

// Pinger is the ledger reachability check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LedgerHealth is the last observed ledger state.
type LedgerHealth struct {
	Up        bool      `json:"up"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// HealthMonitor pings the ledger on an interval and alerts on transitions.
type HealthMonitor struct {
	ledger   Pinger
	webhook  *WebhookService
	interval time.Duration
	stopChan chan struct{}

	mu      sync.RWMutex
	current LedgerHealth
	checked bool
}

func NewHealthMonitor(ledger Pinger, webhook *WebhookService, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &HealthMonitor{
		ledger:   ledger,
		webhook:  webhook,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (h *HealthMonitor) Start() {
	go func() {
		h.Check(context.Background())

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.Check(context.Background())
			case <-h.stopChan:
				system.Info("Ledger health monitor stopped")
				return
			}
		}
	}()
	system.Info("Ledger health monitor started (every %v)", h.interval)
}

func (h *HealthMonitor) Stop() {
	close(h.stopChan)
}

// Check pings the ledger once and returns the new state.
func (h *HealthMonitor) Check(ctx context.Context) LedgerHealth {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := h.ledger.Ping(ctx)
	next := LedgerHealth{Up: err == nil, CheckedAt: time.Now()}
	if err != nil {
		next.Error = err.Error()
		LedgerUp.Set(0)
	} else {
		LedgerUp.Set(1)
	}

	h.mu.Lock()
	prev, seen := h.current, h.checked
	h.current, h.checked = next, true
	h.mu.Unlock()

	// First check only records the state.
	if seen && prev.Up != next.Up {
		h.sendAlert(next)
	}

	return next
}

// Status returns the last observed state.
func (h *HealthMonitor) Status() LedgerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.current
}

func (h *HealthMonitor) sendAlert(state LedgerHealth) {
	if state.Up {
		system.Info("Ledger reachable again")
	} else {
		system.Warn("Ledger became unreachable: %s", state.Error)
	}

	if h.webhook == nil || !h.webhook.IsEnabled() {
		return
	}

	msg := "The ledger node is answering again."
	if !state.Up {
		msg = fmt.Sprintf("Ledger health check failed: `%s`", state.Error)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.webhook.SendLedgerAlert(ctx, state.Up, msg); err != nil {
		system.Warn("Failed to send ledger alert: %v", err)
	}
}
