package handlers

import (
	"runtime"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/models"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/services"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/system"
)

const maxEvents = 100

// SystemStatus represents the current dashboard state
type SystemStatus struct {
	OS          string                 `json:"os"`
	Uptime      string                 `json:"uptime"`
	Goroutines  int                    `json:"goroutines"`
	ModelID     string                 `json:"model_id"`
	Trees       int                    `json:"trees"`
	Accuracy    float64                `json:"accuracy"`
	Predictions int64                  `json:"predictions"`
	Ledger      LedgerStatus           `json:"ledger"`
	Statuses    map[string]int64       `json:"ledger_statuses"`
	Events      []SystemEvent          `json:"events"`
	Health      *services.LedgerHealth `json:"health,omitempty"`
}

// LedgerStatus describes the configured ledger connection.
type LedgerStatus struct {
	Enabled        bool   `json:"enabled"`
	DisabledReason string `json:"disabled_reason,omitempty"`
	Account        string `json:"account,omitempty"`
	Contract       string `json:"contract,omitempty"`
	ChainID        int64  `json:"chain_id,omitempty"`
}

type SystemEvent struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, warning, error, success
	Message string `json:"message"`
}

var (
	eventLog   []SystemEvent
	eventMutex sync.RWMutex
)

// AddEvent records a dashboard event and mirrors it to the log file.
func AddEvent(eventType, message string) {
	eventMutex.Lock()
	defer eventMutex.Unlock()

	event := SystemEvent{
		Time:    time.Now().Format("15:04:05"),
		Type:    eventType,
		Message: message,
	}
	eventLog = append([]SystemEvent{event}, eventLog...)
	if len(eventLog) > maxEvents {
		eventLog = eventLog[:maxEvents]
	}

	switch eventType {
	case "error":
		system.Error("%s", message)
	case "warning":
		system.Warn("%s", message)
	default:
		system.Info("%s", message)
	}
}

// GetEventLog returns a copy of the event log, newest first.
func GetEventLog() []SystemEvent {
	eventMutex.RLock()
	defer eventMutex.RUnlock()

	result := make([]SystemEvent, len(eventLog))
	copy(result, eventLog)
	return result
}

func (h *Handler) ledgerStatus() LedgerStatus {
	st := LedgerStatus{Enabled: h.Ledger.Enabled(), DisabledReason: h.Ledger.DisabledReason()}
	if st.Enabled {
		st.Account = h.Ledger.Account().Hex()
		st.Contract = h.Ledger.Contract().Hex()
		st.ChainID = h.Config.Ledger.ChainID
	}

	return st
}

// GetSystemStatus returns current system status
// GET /api/status
func (h *Handler) GetSystemStatus(c *fiber.Ctx) error {
	status := SystemStatus{
		OS:         runtime.GOOS,
		Uptime:     time.Since(h.startedAt).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		ModelID:    h.Predictor.Fingerprint(),
		Trees:      h.Predictor.Trees(),
		Ledger:     h.ledgerStatus(),
		Statuses:   make(map[string]int64),
		Events:     GetEventLog(),
	}
	if m := h.Predictor.Metrics(); m != nil {
		status.Accuracy = m.Accuracy
	}

	h.DB.Model(&models.Prediction{}).Count(&status.Predictions)

	var rows []struct {
		LedgerStatus string
		Count        int64
	}
	h.DB.Model(&models.Prediction{}).Select("ledger_status, count(*) as count").Group("ledger_status").Scan(&rows)
	for _, r := range rows {
		status.Statuses[r.LedgerStatus] = r.Count
	}

	if h.Health != nil {
		health := h.Health.Status()
		status.Health = &health
	}

	return c.JSON(status)
}

// GetEvents returns recent events
func (h *Handler) GetEvents(c *fiber.Ctx) error {
	return c.JSON(GetEventLog())
}
