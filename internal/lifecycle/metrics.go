package lifecycle

import "github.com/prometheus/client_golang/prometheus"

var (
	downloadsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelsync",
		Subsystem: "lifecycle",
		Name:      "downloads_started_total",
		Help:      "Downloads started locally (including ones later rejected)",
	})

	downloadsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelsync",
		Subsystem: "lifecycle",
		Name:      "downloads_completed_total",
		Help:      "Downloads that reached completion",
	})

	downloadsCancelledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelsync",
		Subsystem: "lifecycle",
		Name:      "downloads_cancelled_total",
		Help:      "Downloads cancelled locally or confirmed cancelled by the backend",
	})

	downloadsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelsync",
		Subsystem: "lifecycle",
		Name:      "downloads_rejected_total",
		Help:      "Download commands the backend refused (optimistic state rolled back)",
	})

	extractionFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelsync",
		Subsystem: "lifecycle",
		Name:      "extraction_failures_total",
		Help:      "Model extraction failures reported by the backend",
	})

	refreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelsync",
		Subsystem: "lifecycle",
		Name:      "snapshot_refreshes_total",
		Help:      "Model snapshot refreshes by outcome",
	}, []string{"outcome"})

	throughputBytesPerSec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "modelsync",
		Subsystem: "lifecycle",
		Name:      "download_throughput_bytes_per_sec",
		Help:      "Smoothed download throughput per model",
	}, []string{"model"})
)

func init() {
	prometheus.MustRegister(
		downloadsStartedTotal,
		downloadsCompletedTotal,
		downloadsCancelledTotal,
		downloadsRejectedTotal,
		extractionFailuresTotal,
		refreshesTotal,
		throughputBytesPerSec,
	)
}
