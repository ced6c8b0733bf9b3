package handlers

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ml"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/models"
)

// ExportData is the JSON export of the local history.
type ExportData struct {
	ExportedAt  time.Time           `json:"exported_at"`
	Version     string              `json:"version"`
	ModelID     string              `json:"model_id"`
	Predictions []models.Prediction `json:"predictions"`
}

// ExportPredictions downloads the history as JSON, or as a training CSV with
// the predicted verdict as label.
// GET /api/predictions/export?format=json|csv
func (h *Handler) ExportPredictions(c *fiber.Ctx) error {
	var predictions []models.Prediction
	if err := h.DB.Order("created_at ASC").Find(&predictions).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	stamp := time.Now().Format("2006-01-02")

	if c.Query("format", "json") == "csv" {
		ds := &ml.Dataset{
			SessionIDs: make([]string, 0, len(predictions)),
			Sessions:   make([]ml.Session, 0, len(predictions)),
			Labels:     make([]int, 0, len(predictions)),
		}
		for _, p := range predictions {
			label := 0
			if p.Attack {
				label = 1
			}
			ds.SessionIDs = append(ds.SessionIDs, p.SessionID)
			ds.Sessions = append(ds.Sessions, p.Session)
			ds.Labels = append(ds.Labels, label)
		}

		var buf bytes.Buffer
		if err := ml.WriteCSV(&buf, ds); err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}

		c.Set("Content-Disposition", "attachment; filename=predictions-"+stamp+".csv")
		c.Set("Content-Type", "text/csv")
		AddEvent("success", "Predictions exported as CSV")

		return c.Send(buf.Bytes())
	}

	export := ExportData{
		ExportedAt:  time.Now(),
		Version:     "1.0",
		ModelID:     h.Predictor.Fingerprint(),
		Predictions: predictions,
	}

	c.Set("Content-Disposition", "attachment; filename=predictions-"+stamp+".json")
	AddEvent("success", "Predictions exported")

	return c.JSON(export)
}
