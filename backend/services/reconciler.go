package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ledger"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/models"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/system"
	"gorm.io/gorm"
)

// LedgerWriter is the part of ledger.Client the reconciler drives.
type LedgerWriter interface {
	Enabled() bool
	Record(ctx context.Context, sessionID string, detected bool) ledger.WriteResult
	Receipt(ctx context.Context, txHash string) ledger.WriteResult
}

// SaveLedgerResult stores the outcome of a ledger write on a prediction row.
// A known tx hash is never cleared.
func SaveLedgerResult(db *gorm.DB, id string, res ledger.WriteResult) error {
	updates := map[string]any{
		"ledger_status":   string(res.Status),
		"ledger_error":    res.Error,
		"ledger_attempts": gorm.Expr("ledger_attempts + ?", res.Attempts),
	}
	if res.TxHash != "" {
		updates["tx_hash"] = res.TxHash
	}

	if err := db.Model(&models.Prediction{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to save ledger result for %s: %w", id, err)
	}

	return nil
}

// Reconciler revisits predictions whose ledger write did not finish with a
// confirmed or rejected status. Submitted transactions are looked up by hash
// and never resubmitted; writes that never reached the node are retried.
type Reconciler struct {
	db         *gorm.DB
	ledger     LedgerWriter
	interval   time.Duration
	maxTries   int
	staleAfter time.Duration
	batch      int
	stopChan   chan struct{}
}

func NewReconciler(db *gorm.DB, lw LedgerWriter, interval time.Duration, maxTries int, staleAfter time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxTries <= 0 {
		maxTries = 5
	}

	return &Reconciler{
		db:         db,
		ledger:     lw,
		interval:   interval,
		maxTries:   maxTries,
		staleAfter: staleAfter,
		batch:      50,
		stopChan:   make(chan struct{}),
	}
}

func (r *Reconciler) Start() {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := r.RunOnce(context.Background()); err != nil {
					system.Warn("Ledger reconciliation failed: %v", err)
				}
			case <-r.stopChan:
				system.Info("Ledger reconciler stopped")
				return
			}
		}
	}()
	system.Info("Ledger reconciler started (every %v, max %d tries)", r.interval, r.maxTries)
}

func (r *Reconciler) Stop() {
	close(r.stopChan)
}

// RunOnce processes one batch and returns how many rows reached a final status.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	if !r.ledger.Enabled() {
		return 0, nil
	}

	var rows []models.Prediction
	err := r.db.
		Where("ledger_attempts < ?", r.maxTries).
		Where(r.db.
			Where("ledger_status IN ?", []string{string(ledger.StatusConnectionFailed), string(ledger.StatusTimeout)}).
			Or("ledger_status = ? AND created_at < ?", string(ledger.StatusPending), time.Now().Add(-r.staleAfter))).
		Order("created_at").
		Limit(r.batch).
		Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load unreconciled predictions: %w", err)
	}

	settled := 0
	for _, p := range rows {
		var res ledger.WriteResult
		if p.TxHash != "" {
			res = r.ledger.Receipt(ctx, p.TxHash)
			res.Attempts = 1
		} else {
			res = r.ledger.Record(ctx, p.SessionID, p.Attack)
		}

		// An unknown receipt stays a timeout until it is mined or tries run out.
		if res.Status == ledger.StatusPending {
			res.Status = ledger.StatusTimeout
		}

		if err := SaveLedgerResult(r.db, p.ID, res); err != nil {
			return settled, err
		}
		Reconciled.WithLabelValues(string(res.Status)).Inc()

		if res.Status == ledger.StatusOK || res.Status == ledger.StatusRejected {
			settled++
		}
	}

	if len(rows) > 0 {
		system.Info("Ledger reconciliation: %d of %d prediction(s) settled", settled, len(rows))
	}

	return settled, nil
}
