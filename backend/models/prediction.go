package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ml"
	"gorm.io/gorm"
)

// Prediction is the local record of one scored session and the state of its
// ledger write. The chain stays the tamper-evident copy.
type Prediction struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SessionID string `gorm:"index;not null" json:"session_id"`
	ml.Session

	Label      string  `gorm:"index;not null" json:"label"`
	Attack     bool    `gorm:"index" json:"attack"`
	Confidence float64 `json:"confidence"`
	ModelID    string  `json:"model_id,omitempty"`

	LedgerStatus   string `gorm:"index;default:'pending'" json:"ledger_status"`
	TxHash         string `json:"tx_hash,omitempty"`
	LedgerError    string `json:"ledger_error,omitempty"`
	LedgerAttempts int    `gorm:"default:0" json:"ledger_attempts"`

	SourceIP    string `json:"source_ip,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// BeforeCreate assigns a random id when none is set.
func (p *Prediction) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	return nil
}

// NewPrediction copies the session fields and verdict into a record.
func NewPrediction(sessionID string, s ml.Session, verdict ml.Prediction) *Prediction {
	return &Prediction{
		SessionID:    sessionID,
		Session:      s,
		Label:        verdict.Label,
		Attack:       verdict.Attack,
		Confidence:   verdict.Confidence,
		LedgerStatus: "pending",
	}
}

// PredictionStats aggregates the local history.
type PredictionStats struct {
	Total          int64            `json:"total"`
	Attacks        int64            `json:"attacks"`
	TodayCount     int64            `json:"today_count"`
	TodayAttacks   int64            `json:"today_attacks"`
	WeekCount      int64            `json:"week_count"`
	AvgConfidence  float64          `json:"avg_confidence"`
	TopCountry     string           `json:"top_country,omitempty"`
	LedgerStatuses map[string]int64 `json:"ledger_statuses"`
}
