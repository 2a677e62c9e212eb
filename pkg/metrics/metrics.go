package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics for the chain model. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	UtterancesIngested *prometheus.CounterVec
	Generations        *prometheus.CounterVec
	Replies            *prometheus.CounterVec
	TopicRebuilds      prometheus.Counter
	TopicDuration      prometheus.Histogram
	TopicRows          prometheus.Gauge
}

// NewCollector creates a collector registered on its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		UtterancesIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "utterances_ingested_total",
				Help:      "Tokenized utterances ingested into the relation graph",
			},
			[]string{"authorship"},
		),
		Generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Random-walk generations by outcome",
			},
			[]string{"outcome"},
		),
		Replies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replies_total",
				Help:      "Replies by source (matched past reply or generated)",
			},
			[]string{"source"},
		),
		TopicRebuilds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "topic_rebuilds_total",
				Help:      "Full tf-idf topic score rebuilds",
			},
		),
		TopicDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "topic_rebuild_duration_seconds",
				Help:      "Duration of topic score rebuilds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		TopicRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "topic_score_rows",
				Help:      "Rows in the topic score table after the last rebuild",
			},
		),
	}

	registry.MustRegister(
		c.UtterancesIngested,
		c.Generations,
		c.Replies,
		c.TopicRebuilds,
		c.TopicDuration,
		c.TopicRows,
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordIngest(authorship string) {
	if c == nil {
		return
	}
	c.UtterancesIngested.WithLabelValues(authorship).Inc()
}

func (c *Collector) RecordGeneration(fallback bool) {
	if c == nil {
		return
	}
	outcome := "generated"
	if fallback {
		outcome = "fallback"
	}
	c.Generations.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordReply(matched bool) {
	if c == nil {
		return
	}
	source := "generated"
	if matched {
		source = "matched"
	}
	c.Replies.WithLabelValues(source).Inc()
}

func (c *Collector) RecordRebuild(rows int, d time.Duration) {
	if c == nil {
		return
	}
	c.TopicRebuilds.Inc()
	c.TopicDuration.Observe(d.Seconds())
	c.TopicRows.Set(float64(rows))
}
