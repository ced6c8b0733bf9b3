package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ml"
)

// InsightsResponse is the model insights view, computed once at training time.
type InsightsResponse struct {
	ModelID            string                 `json:"model_id"`
	Accuracy           float64                `json:"accuracy"`
	ConfusionMatrix    [][]int                `json:"confusion_matrix"`
	FeatureImportances []ml.FeatureImportance `json:"feature_importances"`
	Report             []ml.ClassReport       `json:"report"`
	ReportText         string                 `json:"report_text"`
	Categories         map[string][]string    `json:"categories"`
	Rows               int                    `json:"rows"`
	TrainRows          int                    `json:"train_rows"`
	TestRows           int                    `json:"test_rows"`
	Trees              int                    `json:"trees"`
	Seed               int64                  `json:"seed"`
	ScalerFitFull      bool                   `json:"scaler_fit_full"`
	TrainedAt          string                 `json:"trained_at"`
}

// GetInsights returns accuracy, confusion matrix and ranked importances.
// GET /api/insights
func (h *Handler) GetInsights(c *fiber.Ctx) error {
	m := h.Predictor.Metrics()
	if m == nil {
		return c.Status(503).JSON(fiber.Map{"error": "Model metrics not available"})
	}

	return c.JSON(InsightsResponse{
		ModelID:            h.Predictor.Fingerprint(),
		Accuracy:           m.Accuracy,
		ConfusionMatrix:    m.ConfusionMatrix,
		FeatureImportances: m.RankedImportances(),
		Report:             m.Report,
		ReportText:         m.ReportText(),
		Categories:         h.Predictor.Categories(),
		Rows:               m.Rows,
		TrainRows:          m.TrainRows,
		TestRows:           m.TestRows,
		Trees:              m.Trees,
		Seed:               m.Seed,
		ScalerFitFull:      m.ScalerFitFull,
		TrainedAt:          m.TrainedAt.Format("2006-01-02 15:04:05"),
	})
}
