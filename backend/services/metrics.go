package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyberledger_predictions_total",
		Help: "Scored sessions by verdict label.",
	}, []string{"label"})

	PredictionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyberledger_prediction_errors_total",
		Help: "Rejected prediction requests by reason.",
	}, []string{"reason"})

	PredictionConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cyberledger_prediction_confidence",
		Help:    "Attack probability of scored sessions.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	LedgerWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyberledger_ledger_writes_total",
		Help: "Finished ledger writes by status.",
	}, []string{"status"})

	LedgerWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cyberledger_ledger_write_duration_seconds",
		Help:    "Time from submission to a final ledger status.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	LedgerUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cyberledger_ledger_up",
		Help: "1 when the last ledger health check succeeded.",
	})

	Reconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyberledger_reconciled_total",
		Help: "Predictions revisited by the reconciler, by resulting status.",
	}, []string{"status"})

	KafkaEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyberledger_kafka_events_total",
		Help: "Detection events published to Kafka by result.",
	}, []string{"result"})
)
