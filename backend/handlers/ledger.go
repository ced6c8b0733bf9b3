package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ledger"
)

const (
	defaultAlertLimit = 5
	maxAlertLimit     = 50
)

// AlertView is one row of the recent alerts table.
type AlertView struct {
	Status    ledger.Status `json:"status"`
	Index     uint64        `json:"index"`
	SessionID string        `json:"session_id,omitempty"`
	Detected  bool          `json:"detected"`
	Timestamp int64         `json:"timestamp,omitempty"`
	Time      string        `json:"time,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// GetRecentAlerts lists the newest on-chain alerts.
// GET /api/ledger/alerts?limit=5
func (h *Handler) GetRecentAlerts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultAlertLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > maxAlertLimit {
		limit = maxAlertLimit
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.readTimeout())
	defer cancel()

	count, results := h.Ledger.Recent(ctx, limit)

	alerts := make([]AlertView, 0, len(results))
	for _, r := range results {
		v := AlertView{Status: r.Status, Index: r.Alert.Index, Error: r.Error}
		if r.Status == ledger.StatusOK {
			v.SessionID = r.Alert.SessionID
			v.Detected = r.Alert.Detected
			v.Timestamp = r.Alert.Timestamp
			v.Time = r.Alert.Formatted()
		}
		alerts = append(alerts, v)
	}

	return c.JSON(fiber.Map{
		"count":  count,
		"limit":  limit,
		"alerts": alerts,
	})
}

func (h *Handler) readTimeout() time.Duration {
	if t := h.Config.Ledger.ReceiptTimeout; t > 0 {
		return t
	}

	return 10 * time.Second
}

// GetLedgerStatus reports the connection and the last health check.
// GET /api/ledger/status
func (h *Handler) GetLedgerStatus(c *fiber.Ctx) error {
	resp := fiber.Map{"ledger": h.ledgerStatus()}
	if h.Health != nil {
		resp["health"] = h.Health.Status()
	}

	return c.JSON(resp)
}
