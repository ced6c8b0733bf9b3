package services

import (
	"context"
	"errors"

	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/models"
)

// Notifier receives every finished prediction.
type Notifier interface {
	NotifyDetection(ctx context.Context, p *models.Prediction) error
}

// Notifiers fans a prediction out to each sink and joins their errors.
type Notifiers []Notifier

func (n Notifiers) NotifyDetection(ctx context.Context, p *models.Prediction) error {
	var errs []error
	for _, sink := range n {
		if sink == nil {
			continue
		}
		if err := sink.NotifyDetection(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
