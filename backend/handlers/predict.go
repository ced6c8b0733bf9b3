package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ledger"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ml"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/models"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/services"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/system"
	"github.com/segmentio/ksuid"
)

// PredictRequest is the form payload. Omitted session fields take the form
// defaults; an empty session id is generated. unusual_time_access accepts
// 0/1 as well as true/false.
type PredictRequest struct {
	SessionID string `json:"session_id"`
	ml.Session
	UnusualTime *flag `json:"unusual_time_access"`
}

type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	switch strings.Trim(strings.ToLower(string(b)), `"`) {
	case "1", "true":
		*f = true
	case "0", "false":
		*f = false
	default:
		return fmt.Errorf("unusual_time_access: want 0, 1, true or false, got %s", b)
	}

	return nil
}

// PredictResponse is always returned once inference succeeded, whatever the
// ledger outcome.
type PredictResponse struct {
	ID         string             `json:"id,omitempty"`
	SessionID  string             `json:"session_id"`
	Label      string             `json:"label"`
	Attack     bool               `json:"attack"`
	Confidence float64            `json:"confidence"`
	ModelID    string             `json:"model_id,omitempty"`
	Ledger     ledger.WriteResult `json:"ledger"`
}

// Predict scores a session, stores it and starts the ledger write.
// POST /api/predict
func (h *Handler) Predict(c *fiber.Ctx) error {
	req := PredictRequest{Session: ml.DefaultSession()}
	if err := c.BodyParser(&req); err != nil {
		services.PredictionErrors.WithLabelValues("bad_request").Inc()
		return c.Status(400).JSON(fiber.Map{"error": "Invalid input"})
	}
	if req.UnusualTime != nil {
		req.Session.UnusualTimeAccess = bool(*req.UnusualTime)
	}

	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		req.SessionID = "SID_" + ksuid.New().String()
	}

	verdict, err := h.Predictor.Predict(req.Session)
	switch {
	case errors.Is(err, ml.ErrUnknownCategory):
		services.PredictionErrors.WithLabelValues("unknown_category").Inc()
		return c.Status(422).JSON(fiber.Map{"error": err.Error(), "categories": h.Predictor.Categories()})
	case errors.Is(err, ml.ErrInvalidSession):
		services.PredictionErrors.WithLabelValues("invalid").Inc()
		return c.Status(422).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		services.PredictionErrors.WithLabelValues("inference").Inc()
		system.Error("Inference failed for %s: %v", req.SessionID, err)
		return c.Status(500).JSON(fiber.Map{"error": "Inference failed"})
	}

	services.Predictions.WithLabelValues(verdict.Label).Inc()
	services.PredictionConfidence.Observe(verdict.Confidence)

	record := models.NewPrediction(req.SessionID, req.Session, verdict)
	record.ModelID = h.Predictor.Fingerprint()
	record.SourceIP = c.IP()
	if h.GeoIP != nil {
		record.CountryCode = h.GeoIP.CountryCode(record.SourceIP)
	}

	stored := true
	if err := h.DB.Create(record).Error; err != nil {
		stored = false
		system.Error("Failed to store prediction %s: %v", req.SessionID, err)
	}

	started := time.Now()
	pending := h.Ledger.RecordAsync(context.Background(), req.SessionID, verdict.Attack)

	wait := h.Config.Ledger.RequestWait
	ctx, cancel := context.WithTimeout(c.UserContext(), wait)
	res, finished := pending.Wait(ctx)
	cancel()

	if finished {
		h.completeLedger(record, stored, res, started)
	} else {
		h.goTracked(func() {
			h.completeLedger(record, stored, pending.Result(), started)
		})
	}

	if verdict.Attack {
		AddEvent("warning", "Attack detected for session "+req.SessionID)
	}

	return c.JSON(PredictResponse{
		ID:         record.ID,
		SessionID:  req.SessionID,
		Label:      verdict.Label,
		Attack:     verdict.Attack,
		Confidence: verdict.Confidence,
		ModelID:    record.ModelID,
		Ledger:     res,
	})
}

// completeLedger persists the final write status and fans the prediction out
// to the notifiers.
func (h *Handler) completeLedger(record *models.Prediction, stored bool, res ledger.WriteResult, started time.Time) {
	services.LedgerWrites.WithLabelValues(string(res.Status)).Inc()
	if res.Status != ledger.StatusDisabled {
		services.LedgerWriteDuration.Observe(time.Since(started).Seconds())
	}

	record.LedgerStatus = string(res.Status)
	record.LedgerError = res.Error
	record.LedgerAttempts += res.Attempts
	if res.TxHash != "" {
		record.TxHash = res.TxHash
	}

	if stored {
		if err := services.SaveLedgerResult(h.DB, record.ID, res); err != nil {
			system.Error("%v", err)
		}
	}

	if res.Status == ledger.StatusConnectionFailed || res.Status == ledger.StatusRejected {
		AddEvent("warning", "Ledger write failed for "+record.SessionID+": "+string(res.Status))
	}

	if h.Notifier == nil {
		return
	}

	snapshot := *record
	h.goTracked(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := h.Notifier.NotifyDetection(ctx, &snapshot); err != nil {
			system.Warn("Notification for %s failed: %v", snapshot.SessionID, err)
		}
	})
}
