package services

import (
	"context"
	"time"

	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/system"
	"gorm.io/gorm"
)

// DailyReporter sends the detection summary to Discord once a day at midnight.
type DailyReporter struct {
	db       *gorm.DB
	webhook  *WebhookService
	stopChan chan struct{}
}

func NewDailyReporter(db *gorm.DB, webhook *WebhookService) *DailyReporter {
	return &DailyReporter{
		db:       db,
		webhook:  webhook,
		stopChan: make(chan struct{}),
	}
}

// Start schedules the report at local midnight
func (r *DailyReporter) Start() {
	go func() {
		for {
			now := time.Now()
			next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())

			system.Info("Next daily report scheduled in %v", next.Sub(now))
			timer := time.NewTimer(next.Sub(now))

			select {
			case <-timer.C:
				r.SendReport(context.Background())
			case <-r.stopChan:
				timer.Stop()
				return
			}
		}
	}()
}

func (r *DailyReporter) Stop() {
	close(r.stopChan)
}

// SendReport computes and posts the report
func (r *DailyReporter) SendReport(ctx context.Context) {
	if !r.webhook.IsEnabled() {
		return
	}

	system.Info("Generating daily detection report...")
	stats, err := ComputeStats(r.db, time.Now())
	if err != nil {
		system.Warn("Daily report skipped: %v", err)
		return
	}

	if err := r.webhook.SendDailyReport(ctx, stats); err != nil {
		system.Warn("Failed to send daily report: %v", err)
	}
}
