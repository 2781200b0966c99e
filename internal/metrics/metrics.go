// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TrailSaves counts gateway saves by the store that accepted them
	TrailSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trails_saves_total",
		Help: "Trail saves by accepting store (primary, offline, none)",
	}, []string{"source"})

	PrimaryRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trails_primary_retries_total",
		Help: "Retried primary store writes",
	})

	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trails_store_operation_duration_seconds",
		Help:    "Latency of trail store operations",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"store", "operation", "status"})

	PointsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trails_points_total",
		Help: "Location points offered to the recorder by outcome",
	}, []string{"outcome"})

	RecordingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trails_recording_transitions_total",
		Help: "Recording state transitions by target state",
	}, []string{"to"})

	SnapshotWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trails_snapshot_writes_total",
		Help: "Session snapshot writes by status",
	}, []string{"status"})

	SyncedTrails = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trails_sync_trails_total",
		Help: "Offline trails pushed by the reconciler by status",
	}, []string{"status"})

	SyncCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trails_sync_cycles_total",
		Help: "Reconciliation cycles by status",
	}, []string{"status"})

	PendingTrails = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trails_pending_offline",
		Help: "Offline trails still waiting for the primary store",
	})
)
