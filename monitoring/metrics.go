package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"scan-gate/models"
)

var (
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scans_total",
			Help: "Scan validations by source and result",
		},
		[]string{"source", "result"},
	)

	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_duration_seconds",
			Help:    "Duration of scan validations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"source"},
	)

	pendingWrites = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pending_writes_total",
			Help: "Unsynced local writes awaiting reconciliation",
		},
		[]string{"kind"},
	)

	reconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Reconciliation attempts by result",
		},
		[]string{"result"},
	)

	reconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconcile_duration_seconds",
			Help:    "Duration of reconciliation batches",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	reconcileItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_items_total",
			Help: "Reconciled items by type and result",
		},
		[]string{"type", "result"},
	)
)

// TrackScan records one scan validation outcome.
func TrackScan(source, result string, duration time.Duration) {
	scansTotal.WithLabelValues(source, result).Inc()
	scanDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// TrackReconcile records one reconciliation attempt.
func TrackReconcile(result string, duration time.Duration) {
	reconcileRuns.WithLabelValues(result).Inc()
	reconcileDuration.Observe(duration.Seconds())
}

// TrackReconcileItems records per-item merge outcomes from a batch report.
func TrackReconcileItems(itemType, result string, count int) {
	if count > 0 {
		reconcileItems.WithLabelValues(itemType, result).Add(float64(count))
	}
}

// PendingCounter is the slice of the local store the monitor samples.
type PendingCounter interface {
	PendingCounts(ctx context.Context) (models.PendingCounts, error)
}

type Monitor struct {
	counts PendingCounter
}

func NewMonitor(counts PendingCounter) *Monitor {
	monitor := &Monitor{counts: counts}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		m.collectPendingMetrics(ctx)
		cancel()
	}
}

func (m *Monitor) collectPendingMetrics(ctx context.Context) {
	counts, err := m.counts.PendingCounts(ctx)
	if err != nil {
		return
	}
	pendingWrites.WithLabelValues(models.PendingKindTicket).Set(float64(counts.Tickets))
	pendingWrites.WithLabelValues(models.PendingKindScanLog).Set(float64(counts.ScanLogs))
}
