package observe

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver implements Observer using Prometheus metrics.
//
// Example:
//
//	obs := observe.NewPrometheusObserver("fibpipe", prometheus.DefaultRegisterer)
//	// Creates metrics like: fibpipe_pipeline_submissions_total
type PrometheusObserver struct {
	submissions        *prometheus.CounterVec
	submitDuration     *prometheus.HistogramVec
	dependencyDuration *prometheus.HistogramVec
	dependencyErrors   *prometheus.CounterVec
	computed           *prometheus.CounterVec
	computeDuration    prometheus.Histogram
	dropped            prometheus.Counter
}

// NewPrometheusObserver creates a Prometheus observer with the given namespace.
// All metrics are prefixed with "{namespace}_pipeline_".
func NewPrometheusObserver(namespace string, registerer prometheus.Registerer) *PrometheusObserver {
	if namespace == "" {
		namespace = "fibpipe"
	}

	submissions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "submissions_total",
			Help:      "Total number of index submissions by outcome",
		},
		[]string{"outcome"},
	)

	submitDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "submit_duration_seconds",
			Help:      "Duration of submit requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	dependencyDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "dependency_duration_seconds",
			Help:      "Latency of cache, channel and store calls in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"dependency", "op"},
	)

	dependencyErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "dependency_errors_total",
			Help:      "Total number of failed collaborator calls",
		},
		[]string{"dependency", "op"},
	)

	computed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "computed_total",
			Help:      "Total number of deliveries computed by the worker",
		},
		[]string{"status"},
	)

	computeDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "compute_duration_seconds",
			Help:      "Time from receipt to cache write in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	dropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "dropped_messages_total",
			Help:      "Total number of malformed deliveries dropped by the worker",
		},
	)

	registerer.MustRegister(
		submissions,
		submitDuration,
		dependencyDuration,
		dependencyErrors,
		computed,
		computeDuration,
		dropped,
	)

	return &PrometheusObserver{
		submissions:        submissions,
		submitDuration:     submitDuration,
		dependencyDuration: dependencyDuration,
		dependencyErrors:   dependencyErrors,
		computed:           computed,
		computeDuration:    computeDuration,
		dropped:            dropped,
	}
}

func (o *PrometheusObserver) OnSubmit(ctx context.Context, event *SubmitEvent) {
	o.submissions.WithLabelValues(event.Outcome).Inc()
	o.submitDuration.WithLabelValues(event.Outcome).Observe(event.Duration.Seconds())
}

func (o *PrometheusObserver) OnDependencyCall(ctx context.Context, event *DependencyEvent) {
	labels := prometheus.Labels{
		"dependency": event.Dependency,
		"op":         event.Op,
	}
	o.dependencyDuration.With(labels).Observe(event.Duration.Seconds())
	if event.Error != nil {
		o.dependencyErrors.With(labels).Inc()
	}
}

func (o *PrometheusObserver) OnCompute(ctx context.Context, event *ComputeEvent) {
	status := "success"
	if event.Error != nil {
		status = "error"
	}
	o.computed.WithLabelValues(status).Inc()
	o.computeDuration.Observe(event.Duration.Seconds())
}

func (o *PrometheusObserver) OnDrop(ctx context.Context, event *DropEvent) {
	o.dropped.Inc()
}
