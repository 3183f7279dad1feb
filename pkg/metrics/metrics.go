// Package metrics provides Prometheus-based metrics for the mention pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SHAFT-Foundation/speechlab-twitter-spaces-translator-sub001/pkg/logx"
)

// Recorder holds the pipeline's Prometheus collectors.
type Recorder struct {
	mentionsDiscovered prometheus.Counter
	mentionsEnqueued   prometheus.Counter
	mentionsProcessed  *prometheus.CounterVec
	jobsSubmitted      *prometheus.CounterVec
	jobsReused         prometheus.Counter
	pollDuration       *prometheus.HistogramVec
	replyPosts         *prometheus.CounterVec
}

// NewRecorder registers the pipeline collectors on the default registry.
func NewRecorder() *Recorder {
	return &Recorder{
		mentionsDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mentions_discovered_total",
			Help: "Total mentions returned by the scraper across all polls",
		}),
		mentionsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mentions_enqueued_total",
			Help: "Mentions accepted into the intake queue",
		}),
		mentionsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mentions_processed_total",
			Help: "Mentions reaching a terminal classification by outcome",
		}, []string{"workflow", "outcome"}),
		jobsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_jobs_submitted_total",
			Help: "New backend jobs submitted by workflow",
		}, []string{"workflow"}),
		jobsReused: promauto.NewCounter(prometheus.CounterOpts{
			Name: "backend_jobs_reused_total",
			Help: "Submissions short-circuited by an existing job for the same idempotency key",
		}),
		pollDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backend_poll_duration_seconds",
			Help:    "Wall-clock time spent waiting for backend job completion",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"workflow", "result"}),
		replyPosts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reply_posts_total",
			Help: "Reply post attempts by status",
		}, []string{"status"}),
	}
}

// ObserveMentionDiscovered counts one scraped mention.
func (r *Recorder) ObserveMentionDiscovered() { r.mentionsDiscovered.Inc() }

// ObserveMentionEnqueued counts one mention accepted for processing.
func (r *Recorder) ObserveMentionEnqueued() { r.mentionsEnqueued.Inc() }

// ObserveMentionProcessed counts one terminal classification.
func (r *Recorder) ObserveMentionProcessed(workflow, outcome string) {
	r.mentionsProcessed.WithLabelValues(workflow, outcome).Inc()
}

// ObserveJobSubmitted counts one new backend job.
func (r *Recorder) ObserveJobSubmitted(workflow string) {
	r.jobsSubmitted.WithLabelValues(workflow).Inc()
}

// ObserveJobReused counts one deduplicated submission.
func (r *Recorder) ObserveJobReused() { r.jobsReused.Inc() }

// ObservePoll records how long a completion poll ran and how it ended
// ("complete", "failed", or "timeout").
func (r *Recorder) ObservePoll(workflow, result string, d time.Duration) {
	r.pollDuration.WithLabelValues(workflow, result).Observe(d.Seconds())
}

// ObserveReplyPost counts one reply attempt ("ok" or "error").
func (r *Recorder) ObserveReplyPost(status string) {
	r.replyPosts.WithLabelValues(status).Inc()
}

// Serve exposes /metrics on addr. Runs until the listener fails; intended to
// be launched as a goroutine when metrics are enabled.
func Serve(addr string) {
	logger := logx.NewLogger("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("Serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server stopped: %v", err)
	}
}
