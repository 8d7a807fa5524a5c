package backup

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "backup_expiry"

// MetricsCollector exposes run outcomes as Prometheus metrics
type MetricsCollector struct {
	registry *prometheus.Registry

	decisions        *prometheus.CounterVec
	deleted          *prometheus.CounterVec
	deletionFailures *prometheus.CounterVec
	invalidNames     *prometheus.CounterVec
	imagesDeleted    *prometheus.CounterVec
	runErrors        prometheus.Counter
	runs             *prometheus.CounterVec
	runDuration      prometheus.Histogram
	lastRun          prometheus.Gauge
	lastSuccess      prometheus.Gauge
}

// NewMetricsCollector creates a collector registered on its own registry.
// A nil registry creates a fresh one.
func NewMetricsCollector(registry *prometheus.Registry) *MetricsCollector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	mc := &MetricsCollector{
		registry: registry,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "artifact_decisions_total",
			Help:      "Retention decisions by entity class and reason.",
		}, []string{"class", "reason"}),
		deleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "artifacts_deleted_total",
			Help:      "Artifacts removed from storage.",
		}, []string{"store", "class"}),
		deletionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "artifact_deletion_failures_total",
			Help:      "Artifacts that could not be removed after all retries.",
		}, []string{"store", "class"}),
		invalidNames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "invalid_artifact_names_total",
			Help:      "Listed files ignored because their name is not an artifact name.",
		}, []string{"class"}),
		imagesDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "images_deleted_total",
			Help:      "Unreferenced image archives removed from storage.",
		}, []string{"store"}),
		runErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "run_errors_total",
			Help:      "Errors recorded across all runs.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Completed runs by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of expiry runs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last run without errors finished.",
		}),
	}

	registry.MustRegister(
		mc.decisions,
		mc.deleted,
		mc.deletionFailures,
		mc.invalidNames,
		mc.imagesDeleted,
		mc.runErrors,
		mc.runs,
		mc.runDuration,
		mc.lastRun,
		mc.lastSuccess,
	)

	return mc
}

// Registry returns the registry the metrics live on
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// RecordEntity records the outcome of one entity cleanup
func (mc *MetricsCollector) RecordEntity(result *EntityResult) {
	class := string(result.Class)

	if result.Plan != nil {
		for reason, count := range result.Plan.CountByReason() {
			mc.decisions.WithLabelValues(class, string(reason)).Add(float64(count))
		}
	}
	if len(result.Invalid) > 0 {
		mc.invalidNames.WithLabelValues(class).Add(float64(len(result.Invalid)))
	}
	if len(result.Deleted) > 0 {
		mc.deleted.WithLabelValues(result.Store, class).Add(float64(len(result.Deleted)))
	}
	if len(result.Failed) > 0 {
		mc.deletionFailures.WithLabelValues(result.Store, class).Add(float64(len(result.Failed)))
	}
}

// RecordImageCleanup records the outcome of an image cleanup
func (mc *MetricsCollector) RecordImageCleanup(result *ImageCleanupResult) {
	if len(result.Deleted) > 0 {
		mc.imagesDeleted.WithLabelValues(result.Store).Add(float64(len(result.Deleted)))
	}
}

// RecordRun records a finished run
func (mc *MetricsCollector) RecordRun(report *RunReport) {
	finished := report.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	errorCount := report.ErrorCount()
	mc.runErrors.Add(float64(errorCount))
	mc.runDuration.Observe(report.Duration().Seconds())
	mc.lastRun.Set(float64(finished.Unix()))

	if errorCount > 0 {
		mc.runs.WithLabelValues("failure").Inc()
		return
	}
	mc.runs.WithLabelValues("success").Inc()
	mc.lastSuccess.Set(float64(finished.Unix()))
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
