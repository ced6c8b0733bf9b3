package handlers

import (
	"sync"
	"time"

	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/config"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ledger"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ml"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/services"
	"gorm.io/gorm"
)

// Handler carries the shared, read-mostly state of the HTTP API. Predictor is
// immutable and shared across requests.
type Handler struct {
	DB        *gorm.DB
	Predictor *ml.Predictor
	Ledger    *ledger.Client
	Config    *config.Config

	// Optional collaborators; nil disables the feature.
	GeoIP    *services.GeoIPService
	Health   *services.HealthMonitor
	Webhook  *services.WebhookService
	Notifier services.Notifier

	jwtSecret []byte
	startedAt time.Time
	inflight  sync.WaitGroup
}

func NewHandler(db *gorm.DB, predictor *ml.Predictor, lc *ledger.Client, cfg *config.Config) *Handler {
	if lc == nil {
		lc = ledger.Disabled("ledger not configured")
	}

	return &Handler{
		DB:        db,
		Predictor: predictor,
		Ledger:    lc,
		Config:    cfg,
		jwtSecret: jwtSecretFrom(cfg.Auth.JWTSecret),
		startedAt: time.Now(),
	}
}

// Wait blocks until background ledger completions and notifications finish.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

func (h *Handler) goTracked(fn func()) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		fn()
	}()
}
