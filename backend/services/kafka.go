package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/models"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/system"
	"github.com/twmb/franz-go/pkg/kgo"
)

// DetectionEvent is the record published for each prediction.
type DetectionEvent struct {
	ID           string  `json:"id"`
	SessionID    string  `json:"session_id"`
	Label        string  `json:"label"`
	Attack       bool    `json:"attack"`
	Confidence   float64 `json:"confidence"`
	LedgerStatus string  `json:"ledger_status"`
	TxHash       string  `json:"tx_hash,omitempty"`
	CountryCode  string  `json:"country_code,omitempty"`
	Timestamp    string  `json:"timestamp"`
	Source       string  `json:"source"`
}

type recordProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher streams detection events to a topic.
type KafkaPublisher struct {
	client recordProducer
	topic  string
}

// NewKafkaPublisher connects a producer to brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &KafkaPublisher{client: cl, topic: topic}, nil
}

func (k *KafkaPublisher) NotifyDetection(ctx context.Context, p *models.Prediction) error {
	data, err := json.Marshal(DetectionEvent{
		ID:           p.ID,
		SessionID:    p.SessionID,
		Label:        p.Label,
		Attack:       p.Attack,
		Confidence:   p.Confidence,
		LedgerStatus: p.LedgerStatus,
		TxHash:       p.TxHash,
		CountryCode:  p.CountryCode,
		Timestamp:    p.CreatedAt.UTC().Format(time.RFC3339),
		Source:       "dashboard",
	})
	if err != nil {
		return fmt.Errorf("kafka publish: marshal error: %w", err)
	}

	record := &kgo.Record{
		Topic:     k.topic,
		Key:       []byte(p.SessionID),
		Value:     data,
		Timestamp: time.Now(),
	}

	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		KafkaEvents.WithLabelValues("error").Inc()
		return fmt.Errorf("kafka publish error: %w", err)
	}

	KafkaEvents.WithLabelValues("ok").Inc()
	system.Debug("Published detection %s to topic %s", p.SessionID, k.topic)
	return nil
}

// Close flushes and closes the producer.
func (k *KafkaPublisher) Close() {
	k.client.Close()
}
