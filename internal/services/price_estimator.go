package services

import (
	"errors"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/config"
	"github.com/kha86lilo/quotescan/pkg/models"
)

// ErrInsufficientPriceData signals that no contributing match carried a
// usable realized price. Callers must treat this as "no estimate", never as
// a zero price.
var ErrInsufficientPriceData = errors.New("insufficient price data for estimate")

// PriceEstimator aggregates realized prices from ranked matches into a point
// estimate, confidence, and range. Pure computation; lane statistics are
// fetched by the caller and passed in.
type PriceEstimator struct {
	config *config.EstimatorConfig
	logger *logrus.Logger
}

func NewPriceEstimator(cfg *config.EstimatorConfig, logger *logrus.Logger) *PriceEstimator {
	return &PriceEstimator{
		config: cfg,
		logger: logger,
	}
}

// Estimate weights each match's price by similarity x price confidence and
// returns the weighted average, a +/-10% envelope around the observed
// extremes, and the mean contribution weight as confidence.
func (e *PriceEstimator) Estimate(matches []ScoredMatch) (*models.PriceEstimate, error) {
	var weightedSum, weightSum float64
	var minPrice, maxPrice float64
	contributing := 0

	for _, m := range matches {
		if m.Candidate == nil {
			continue
		}
		price := m.Candidate.RealizedPrice()
		if price == nil {
			continue
		}

		confidence := e.config.DefaultPriceConfidence
		if m.Match.PriceConfidence != nil && *m.Match.PriceConfidence > 0 {
			confidence = *m.Match.PriceConfidence
		}

		weight := m.Match.SimilarityScore * confidence
		if weight <= 0 {
			continue
		}

		weightedSum += *price * weight
		weightSum += weight

		if contributing == 0 || *price < minPrice {
			minPrice = *price
		}
		if contributing == 0 || *price > maxPrice {
			maxPrice = *price
		}
		contributing++
	}

	if contributing == 0 || weightSum == 0 {
		return nil, ErrInsufficientPriceData
	}

	estimate := &models.PriceEstimate{
		WeightedAverage: round2(weightedSum / weightSum),
		Range: models.PriceRange{
			Low:  round2(minPrice * e.config.RangeLowFactor),
			High: round2(maxPrice * e.config.RangeHighFactor),
		},
		// Mean weight per contributing match, against a maximum possible
		// single-match weight of 1.0.
		Confidence: round2(weightSum / float64(contributing)),
		BasedOn:    contributing,
	}

	return estimate, nil
}

// SuggestPriceWithFeedback extends Estimate with lane-level statistics: when
// match confidence is low and the lane sample is large, the point estimate is
// blended toward the lane average. The blend weight is fixed below 1, so the
// lane never fully overrides the matches.
func (e *PriceEstimator) SuggestPriceWithFeedback(matches []ScoredMatch, lane *models.LaneStats) (*models.PriceEstimate, error) {
	estimate, err := e.Estimate(matches)
	if err != nil {
		return nil, err
	}

	if lane == nil || lane.AveragePrice <= 0 {
		return estimate, nil
	}
	if lane.QuoteCount < e.config.LaneMinSamples {
		return estimate, nil
	}
	if estimate.Confidence >= e.config.LaneConfidenceFloor {
		return estimate, nil
	}

	blend := e.config.LaneBlendWeight
	blended := estimate.WeightedAverage*(1-blend) + lane.AveragePrice*blend

	e.logger.WithFields(logrus.Fields{
		"match_average": estimate.WeightedAverage,
		"lane_average":  lane.AveragePrice,
		"lane_count":    lane.QuoteCount,
		"blended":       blended,
	}).Debug("Applied lane blend to price estimate")

	estimate.WeightedAverage = round2(blended)
	estimate.LaneAdjusted = true

	return estimate, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
