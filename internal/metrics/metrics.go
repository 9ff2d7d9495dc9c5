package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "travelplanner"

	imageJobsEnqueuedTotal       = "image_jobs_enqueued_total"
	imageJobsClaimedTotal        = "image_jobs_claimed_total"
	imageJobsCompletedTotal      = "image_jobs_completed_total"
	imageJobsFailedTotal         = "image_jobs_failed_total"
	imageJobsStaleRecoveredTotal = "image_jobs_stale_recovered_total"
	imageJobs                    = "image_jobs"
	imageGenerationSeconds       = "image_generation_seconds"

	// Labels
	entityTypeLabel = "entity_type"
	outcomeLabel    = "outcome"
	statusLabel     = "status"

	OutcomeRetry    = "retry"
	OutcomeTerminal = "terminal"
)

var enqueuedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      imageJobsEnqueuedTotal,
		Help:      "number of image jobs enqueued",
	},
	[]string{entityTypeLabel},
)

var claimedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      imageJobsClaimedTotal,
		Help:      "number of image jobs claimed by workers",
	},
)

var completedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      imageJobsCompletedTotal,
		Help:      "number of image jobs completed",
	},
	[]string{entityTypeLabel},
)

var failedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      imageJobsFailedTotal,
		Help:      "number of failed image job attempts, by whether the job will be retried",
	},
	[]string{outcomeLabel},
)

var staleRecoveredMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      imageJobsStaleRecoveredTotal,
		Help:      "number of stale in_progress image jobs recovered",
	},
)

var jobsByStatusMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      imageJobs,
		Help:      "image jobs in each status at the last stats refresh",
	},
	[]string{statusLabel},
)

var generationSecondsMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      imageGenerationSeconds,
		Help:      "time spent generating one image",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 60, 90, 120},
	},
)

func IncreaseEnqueued(entityType string) {
	enqueuedMetric.With(prometheus.Labels{entityTypeLabel: entityType}).Inc()
}

func IncreaseClaimed() {
	claimedMetric.Inc()
}

func IncreaseCompleted(entityType string) {
	completedMetric.With(prometheus.Labels{entityTypeLabel: entityType}).Inc()
}

func IncreaseFailed(outcome string) {
	failedMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func AddStaleRecovered(n int) {
	staleRecoveredMetric.Add(float64(n))
}

func UpdateJobsByStatus(status string, count int) {
	jobsByStatusMetric.With(prometheus.Labels{statusLabel: status}).Set(float64(count))
}

func ObserveGeneration(d time.Duration) {
	generationSecondsMetric.Observe(d.Seconds())
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(enqueuedMetric)
	prometheus.MustRegister(claimedMetric)
	prometheus.MustRegister(completedMetric)
	prometheus.MustRegister(failedMetric)
	prometheus.MustRegister(staleRecoveredMetric)
	prometheus.MustRegister(jobsByStatusMetric)
	prometheus.MustRegister(generationSecondsMetric)
}
