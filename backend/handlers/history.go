package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/models"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/services"
	"gorm.io/gorm"
)

// GetPredictions returns the local prediction history
// GET /api/predictions?page=1&limit=50&label=&ledger_status=
func (h *Handler) GetPredictions(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	label := c.Query("label", "")
	ledgerStatus := c.Query("ledger_status", "")

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	offset := (page - 1) * limit

	query := h.DB.Model(&models.Prediction{})

	if label != "" {
		query = query.Where("label = ?", label)
	}
	if ledgerStatus != "" {
		query = query.Where("ledger_status = ?", ledgerStatus)
	}

	var total int64
	query.Count(&total)

	var predictions []models.Prediction
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&predictions).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"page":        page,
		"limit":       limit,
		"total":       total,
		"predictions": predictions,
	})
}

// GetPrediction returns one stored prediction
// GET /api/predictions/:id
func (h *Handler) GetPrediction(c *fiber.Ctx) error {
	var p models.Prediction
	if err := h.DB.First(&p, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Prediction not found"})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(p)
}

// GetPredictionStats returns summary statistics
// GET /api/predictions/stats
func (h *Handler) GetPredictionStats(c *fiber.Ctx) error {
	stats, err := services.ComputeStats(h.DB, time.Now())
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(stats)
}
