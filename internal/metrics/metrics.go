// Package metrics 流水线的 Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "post_responder"

// Metrics 持有独立的 Registry，测试里可以随意创建多份
type Metrics struct {
	registry *prometheus.Registry

	ItemsProcessed  *prometheus.CounterVec
	Classifications *prometheus.CounterVec
	RepliesPosted   prometheus.Counter
	Errors          *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ItemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_processed_total",
			Help:      "Items visited by the pipeline, by outcome.",
		}, []string{"outcome"}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classification queries sent to the generation backend, by result.",
		}, []string{"requires_response"}),
		RepliesPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_published_total",
			Help:      "Replies published and recorded.",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Pipeline errors, by error code.",
		}, []string{"code"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Wall time of one poll cycle, cooldowns included.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ItemsProcessed,
		m.Classifications,
		m.RepliesPosted,
		m.Errors,
		m.CycleDuration,
	)
	return m
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
