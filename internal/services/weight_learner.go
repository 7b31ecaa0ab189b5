package services

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kha86lilo/quotescan/internal/config"
	"github.com/kha86lilo/quotescan/pkg/models"
)

// maxLearningSamples bounds how much of the rated-match history one learning
// run reads.
const maxLearningSamples = 5000

// WeightLearner recalibrates the scoring weight vector from human feedback.
// Per criterion it correlates criteria scores with rating outcomes across
// rated matches: criteria that score high on thumbs-up matches gain weight,
// criteria that score high on thumbs-down matches lose weight. Each run moves
// a weight by at most the configured step size, so the vector converges
// without oscillating.
type WeightLearner struct {
	feedback *FeedbackRepository
	weights  *WeightManager
	config   *config.LearningConfig
	logger   *logrus.Logger
}

func NewWeightLearner(feedback *FeedbackRepository, weights *WeightManager, cfg *config.LearningConfig, logger *logrus.Logger) *WeightLearner {
	return &WeightLearner{
		feedback: feedback,
		weights:  weights,
		config:   cfg,
		logger:   logger,
	}
}

// LearnFromFeedback runs one bounded adjustment pass. The returned report
// says whether learning ran, which cells moved, and by how much. Runs with
// too little data return Ran=false and touch nothing.
func (l *WeightLearner) LearnFromFeedback(ctx context.Context) (*models.LearningReport, error) {
	report := &models.LearningReport{Adjustments: make(map[string]float64)}

	if !l.config.Enabled {
		return report, nil
	}

	samples, err := l.feedback.GetRatedMatchSamples(ctx, maxLearningSamples)
	if err != nil {
		return nil, err
	}
	report.SamplesUsed = len(samples)

	if len(samples) < l.config.MinSamples {
		l.logger.WithFields(logrus.Fields{
			"samples":     len(samples),
			"min_samples": l.config.MinSamples,
		}).Debug("Not enough rated matches for weight learning")
		return report, nil
	}

	report.Ran = true
	deltas := l.computeDeltas(samples)
	if len(deltas) == 0 {
		return report, nil
	}

	saved, changed, err := l.weights.UpdateWeights(ctx, "feedback learning", func(weights models.WeightVector) (models.WeightVector, bool) {
		for criterion, delta := range deltas {
			current := weights[criterion]
			next := current + delta
			if next < l.config.MinWeight {
				next = l.config.MinWeight
			}
			if next == current {
				continue
			}
			weights[criterion] = next
			report.Adjustments[criterion] = next - current
		}
		report.CellsChanged = len(report.Adjustments)
		return weights, report.CellsChanged > 0
	})
	if err != nil {
		return nil, err
	}

	if changed {
		report.NewVersion = saved.Version
	}

	magnitudes := make([]float64, 0, len(report.Adjustments))
	for _, delta := range report.Adjustments {
		magnitudes = append(magnitudes, math.Abs(delta))
	}
	report.TotalMagnitude = floats.Sum(magnitudes)

	l.logger.WithFields(logrus.Fields{
		"samples":         report.SamplesUsed,
		"cells_changed":   report.CellsChanged,
		"total_magnitude": report.TotalMagnitude,
		"new_version":     report.NewVersion,
	}).Info("Weight learning pass completed")

	return report, nil
}

// computeDeltas correlates each criterion's scores against rating outcomes.
// Criteria with too few observations, degenerate variance, or correlation
// below the threshold are left alone. Deltas scale with correlation strength
// and are bounded by the step size.
func (l *WeightLearner) computeDeltas(samples []RatedMatchSample) map[string]float64 {
	deltas := make(map[string]float64)

	for _, criterion := range models.AllCriteria {
		scores := make([]float64, 0, len(samples))
		ratings := make([]float64, 0, len(samples))

		for _, sample := range samples {
			score, ok := sample.CriteriaScores[criterion]
			if !ok {
				continue
			}
			scores = append(scores, score)
			ratings = append(ratings, float64(sample.Rating))
		}

		if len(scores) < l.config.MinSamples {
			continue
		}

		correlation := stat.Correlation(scores, ratings, nil)
		if math.IsNaN(correlation) || math.Abs(correlation) < l.config.CorrelationThreshold {
			continue
		}

		deltas[criterion] = l.config.StepSize * correlation
	}

	return deltas
}
