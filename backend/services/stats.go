package services

import (
	"fmt"
	"time"

	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/models"
	"gorm.io/gorm"
)

// ComputeStats aggregates the prediction history relative to now.
func ComputeStats(db *gorm.DB, now time.Time) (models.PredictionStats, error) {
	stats := models.PredictionStats{LedgerStatuses: make(map[string]int64)}
	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	q := db.Model(&models.Prediction{})

	if err := q.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return stats, fmt.Errorf("failed to count predictions: %w", err)
	}
	q.Session(&gorm.Session{}).Where("attack = ?", true).Count(&stats.Attacks)
	q.Session(&gorm.Session{}).Where("created_at >= ?", dayAgo).Count(&stats.TodayCount)
	q.Session(&gorm.Session{}).Where("created_at >= ? AND attack = ?", dayAgo, true).Count(&stats.TodayAttacks)
	q.Session(&gorm.Session{}).Where("created_at >= ?", weekAgo).Count(&stats.WeekCount)

	if stats.Total > 0 {
		var avg struct{ Avg float64 }
		q.Session(&gorm.Session{}).Select("AVG(confidence) as avg").Scan(&avg)
		stats.AvgConfidence = avg.Avg
	}

	var top struct {
		CountryCode string
		Count       int64
	}
	q.Session(&gorm.Session{}).
		Select("country_code, COUNT(*) as count").
		Where("attack = ? AND country_code <> ''", true).
		Group("country_code").
		Order("count DESC").
		Limit(1).
		Scan(&top)
	stats.TopCountry = top.CountryCode

	var rows []struct {
		LedgerStatus string
		Count        int64
	}
	q.Session(&gorm.Session{}).
		Select("ledger_status, COUNT(*) as count").
		Group("ledger_status").
		Scan(&rows)
	for _, r := range rows {
		stats.LedgerStatuses[r.LedgerStatus] = r.Count
	}

	return stats, nil
}
