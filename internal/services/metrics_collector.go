package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exposes the engine's Prometheus metrics. Collectors are
// registered once on the default registry at construction.
type MetricsCollector struct {
	batchesTotal       *prometheus.CounterVec
	quotesProcessed    prometheus.Counter
	matchesCreated     prometheus.Counter
	similarityScores   prometheus.Histogram
	estimateConfidence prometheus.Histogram

	oracleDuration  prometheus.Histogram
	oracleFallbacks prometheus.Counter

	learningRuns      *prometheus.CounterVec
	weightAdjustments *prometheus.GaugeVec

	httpDuration *prometheus.HistogramVec
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		batchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "matching_batches_total",
			Help: "Completed batch matching runs by outcome",
		}, []string{"outcome"}),

		quotesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "matching_quotes_processed_total",
			Help: "Query quotes processed across all batches",
		}),

		matchesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "matching_matches_created_total",
			Help: "Quote matches persisted",
		}),

		similarityScores: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "matching_similarity_score",
			Help:    "Similarity scores of persisted matches",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),

		estimateConfidence: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "matching_estimate_confidence",
			Help:    "Confidence of match-based price estimates",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),

		oracleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricing_oracle_request_seconds",
			Help:    "Pricing oracle round trip duration in seconds",
			Buckets: []float64{0.5, 1.0, 2.5, 5.0, 10.0, 20.0, 30.0},
		}),

		oracleFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pricing_oracle_fallbacks_total",
			Help: "Oracle calls that fell back to match-based estimation",
		}),

		learningRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "weight_learning_runs_total",
			Help: "Weight learning passes by outcome",
		}, []string{"outcome"}),

		weightAdjustments: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "criterion_weight_adjustment",
			Help: "Most recent learning adjustment per criterion",
		}, []string{"criterion"}),

		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),
	}
}

// RecordBatch tallies a finished batch run.
func (mc *MetricsCollector) RecordBatch(outcome string, processed, matchesCreated int) {
	if mc == nil {
		return
	}
	mc.batchesTotal.WithLabelValues(outcome).Inc()
	mc.quotesProcessed.Add(float64(processed))
	mc.matchesCreated.Add(float64(matchesCreated))
}

// ObserveSimilarity records the score of one persisted match.
func (mc *MetricsCollector) ObserveSimilarity(score float64) {
	if mc == nil {
		return
	}
	mc.similarityScores.Observe(score)
}

// ObserveEstimateConfidence records the confidence of one price estimate.
func (mc *MetricsCollector) ObserveEstimateConfidence(confidence float64) {
	if mc == nil {
		return
	}
	mc.estimateConfidence.Observe(confidence)
}

// ObserveOracleRequest records one oracle round trip and whether the
// orchestrator fell back to the local estimate.
func (mc *MetricsCollector) ObserveOracleRequest(duration time.Duration, fellBack bool) {
	if mc == nil {
		return
	}
	mc.oracleDuration.Observe(duration.Seconds())
	if fellBack {
		mc.oracleFallbacks.Inc()
	}
}

// RecordLearningRun tallies a learning pass and publishes its per-criterion
// adjustments.
func (mc *MetricsCollector) RecordLearningRun(outcome string, adjustments map[string]float64) {
	if mc == nil {
		return
	}
	mc.learningRuns.WithLabelValues(outcome).Inc()
	for criterion, delta := range adjustments {
		mc.weightAdjustments.WithLabelValues(criterion).Set(delta)
	}
}

// ObserveHTTPRequest records one served HTTP request. Used by the gin
// middleware with the route template, not the raw path.
func (mc *MetricsCollector) ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.httpDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
