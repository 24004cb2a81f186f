// Package metrics exposes Prometheus counters for the segmentation
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SegmentsQueued    prometheus.Counter
	SegmentsProcessed prometheus.Counter
	SegmentsFailed    prometheus.Counter
	VideosFinalized   prometheus.Counter
	VideosFailed      prometheus.Counter
	ExtractionSeconds prometheus.Histogram
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SegmentsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cliplens_segments_queued_total",
			Help: "Segment jobs enqueued by the coordinator.",
		}),
		SegmentsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cliplens_segments_processed_total",
			Help: "Segment jobs processed successfully.",
		}),
		SegmentsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cliplens_segments_failed_total",
			Help: "Segment job attempts that ended in an error.",
		}),
		VideosFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cliplens_videos_finalized_total",
			Help: "Videos transitioned to active after full segmentation.",
		}),
		VideosFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cliplens_videos_failed_total",
			Help: "Videos transitioned to failed.",
		}),
		ExtractionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cliplens_extraction_duration_seconds",
			Help:    "Wall-clock duration of extraction service calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.SegmentsQueued,
		m.SegmentsProcessed,
		m.SegmentsFailed,
		m.VideosFinalized,
		m.VideosFailed,
		m.ExtractionSeconds,
	)

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
