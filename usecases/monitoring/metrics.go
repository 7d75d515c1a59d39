//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "img2address"

// Stage labels of the lookup pipeline
const (
	StageRead       = "read"
	StageDecode     = "decode"
	StagePreprocess = "preprocess"
	StageModelLoad  = "model_load"
	StageEmbed      = "embed"
	StageIndexQuery = "index_query"
	StageRank       = "rank"
)

type Metrics struct {
	StageDuration     *prometheus.HistogramVec
	LocateTotal       *prometheus.CounterVec
	ResultCount       prometheus.Histogram
	CandidatesDropped prometheus.Counter
	ModelLoadAttempts *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
	ScrapeConnections prometheus.Gauge
}

// NewMetrics registers all pipeline metrics with reg. Pass NoopRegisterer()
// to collect without exposing anything.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = noop
	}
	return &Metrics{
		StageDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of the individual lookup pipeline stages",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		LocateTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "locate_requests_total",
				Help:      "Total number of address lookups by outcome",
			},
			[]string{"outcome"},
		),
		ResultCount: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "locate_results",
				Help:      "Number of distinct addresses returned per lookup",
				Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
			},
		),
		CandidatesDropped: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "candidates_without_address_total",
				Help:      "Index matches discarded because they carry no address metadata",
			},
		),
		ModelLoadAttempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_load_attempts_total",
				Help:      "Embedding model acquisition attempts by status",
			},
			[]string{"status"}, // success/error
		),
		CacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "result_cache_lookups_total",
				Help:      "Result cache lookups by result",
			},
			[]string{"result"}, // hit/miss
		),
		ScrapeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "metrics_open_connections",
				Help:      "Open connections to the metrics endpoint",
			},
		),
	}
}

// ObserveStage records the time elapsed since start for a pipeline stage.
// Safe to call on a nil *Metrics.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ModelLoadAttempt(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ModelLoadAttempts.WithLabelValues(status).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Located(outcome string, results int) {
	if m == nil {
		return
	}
	m.LocateTotal.WithLabelValues(outcome).Inc()
	if results >= 0 {
		m.ResultCount.Observe(float64(results))
	}
}

func (m *Metrics) CandidateDropped() {
	if m == nil {
		return
	}
	m.CandidatesDropped.Inc()
}
