// Package metrics exposes Prometheus instrumentation for the indexing pipeline.
// All methods are safe on a nil *Pipeline so callers can run without metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ftsindex"

// Pipeline holds the collectors for one search service instance.
type Pipeline struct {
	registry *prometheus.Registry

	itemsEnqueued  *prometheus.CounterVec
	itemsCompleted *prometheus.CounterVec
	stageErrors    *prometheus.CounterVec
	commits        prometheus.Counter
	commitFailures prometheus.Counter
	commitLatency  prometheus.Histogram
	queueDepth     *prometheus.GaugeVec
	sinceCommit    prometheus.Gauge
}

// NewPipeline creates the collectors and registers them in a private registry.
func NewPipeline() *Pipeline {
	p := &Pipeline{
		registry: prometheus.NewRegistry(),
		itemsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_enqueued_total",
			Help:      "Items submitted to the pipeline, by destination queue",
		}, []string{"queue"}),
		itemsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_completed_total",
			Help:      "Items completed, by outcome",
		}, []string{"outcome"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Per-item failures, by pipeline stage",
		}, []string{"stage"}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Index commits performed",
		}),
		commitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_failures_total",
			Help:      "Index commits that failed after the retry",
		}),
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Time spent in index commits",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Messages waiting in each pipeline queue",
		}, []string{"queue"}),
		sinceCommit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_since_commit",
			Help:      "Writes not yet covered by a commit",
		}),
	}

	p.registry.MustRegister(
		p.itemsEnqueued,
		p.itemsCompleted,
		p.stageErrors,
		p.commits,
		p.commitFailures,
		p.commitLatency,
		p.queueDepth,
		p.sinceCommit,
	)
	return p
}

// Registry returns the registry holding the pipeline collectors.
func (p *Pipeline) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

// Handler serves the collectors in the Prometheus text format.
func (p *Pipeline) Handler() http.Handler {
	if p == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Enqueued counts an item placed on queue.
func (p *Pipeline) Enqueued(queue string) {
	if p == nil {
		return
	}
	p.itemsEnqueued.WithLabelValues(queue).Inc()
}

// Completed counts a finished item.
func (p *Pipeline) Completed(success bool) {
	if p == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "succeeded"
	}
	p.itemsCompleted.WithLabelValues(outcome).Inc()
}

// StageError counts a per-item failure in stage.
func (p *Pipeline) StageError(stage string) {
	if p == nil {
		return
	}
	p.stageErrors.WithLabelValues(stage).Inc()
}

// Committed records a commit attempt and its duration in seconds.
func (p *Pipeline) Committed(seconds float64, err error) {
	if p == nil {
		return
	}
	p.commitLatency.Observe(seconds)
	if err != nil {
		p.commitFailures.Inc()
		return
	}
	p.commits.Inc()
}

// QueueDepths publishes the current queue lengths.
func (p *Pipeline) QueueDepths(run, item, index int) {
	if p == nil {
		return
	}
	p.queueDepth.WithLabelValues("run").Set(float64(run))
	p.queueDepth.WithLabelValues("item").Set(float64(item))
	p.queueDepth.WithLabelValues("index").Set(float64(index))
}

// SinceCommit publishes the number of uncommitted writes.
func (p *Pipeline) SinceCommit(n int) {
	if p == nil {
		return
	}
	p.sinceCommit.Set(float64(n))
}
