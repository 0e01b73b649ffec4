package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirrorfetch_batches_created_total",
		Help: "Total number of batches created",
	})

	TransfersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirrorfetch_transfers_total",
		Help: "Total number of transfer attempts",
	})

	TransfersSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirrorfetch_transfers_success_total",
		Help: "Total number of completed transfers",
	})

	TransfersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirrorfetch_transfers_failed_total",
		Help: "Total number of failed transfers",
	})

	TransfersResumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirrorfetch_transfers_resumed_total",
		Help: "Total number of transfers resumed from a partial file",
	})

	TransferRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirrorfetch_transfer_retries_total",
		Help: "Total number of retry decisions taken by the classifier",
	})

	TransferDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mirrorfetch_transfer_duration_seconds",
		Help:    "Transfer duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	TransferBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirrorfetch_transfer_bytes_total",
		Help: "Total bytes written to destination files",
	})

	MirrorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirrorfetch_mirror_failures_total",
		Help: "Total number of failures reported against mirrors",
	})

	TransfersInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mirrorfetch_transfers_in_flight",
		Help: "Number of transfers currently in flight",
	})
)
