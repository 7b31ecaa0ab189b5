package services

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/config"
	"github.com/kha86lilo/quotescan/pkg/models"
)

const earthRadiusMiles = 3958.8

// ScoredMatch pairs a scored match row with the candidate it was scored
// against, so downstream pricing can reach the candidate's realized price
// without another fetch.
type ScoredMatch struct {
	Match     models.QuoteMatch
	Candidate *models.Quote
}

// SimilarityScorer computes weighted multi-criteria similarity between a
// query quote and historical candidates. Scoring is a pure function of
// (query, candidates, weights, feedback): no I/O, no randomness, and recency
// anchors at the query's creation time so a rematch reproduces its scores.
type SimilarityScorer struct {
	normalizer *QuoteNormalizer
	config     *config.MatchingConfig
	logger     *logrus.Logger
}

func NewSimilarityScorer(normalizer *QuoteNormalizer, cfg *config.MatchingConfig, logger *logrus.Logger) *SimilarityScorer {
	return &SimilarityScorer{
		normalizer: normalizer,
		config:     cfg,
		logger:     logger,
	}
}

// FindMatches scores every candidate against the query and returns matches
// at or above opts.MinScore, sorted by score descending with newer candidates
// winning ties, truncated to opts.MaxMatches when positive. Criteria missing
// data on either side are skipped on both sides of the normalization, so
// sparse quotes are not biased downward. Self-matches are always excluded.
func (s *SimilarityScorer) FindMatches(
	query *models.Quote,
	candidates []*models.Quote,
	weights models.WeightVector,
	opts models.MatchOptions,
	feedback map[uuid.UUID]*models.FeedbackData,
) []ScoredMatch {
	queryNorm := s.normalizer.Normalize(query)
	reference := query.CreatedAt
	if reference.IsZero() {
		reference = time.Now()
	}

	// Boost stays strictly below a single full criterion weight.
	boostCap := s.config.FeedbackBoostCap
	if max := weights.MaxWeight(); max > 0 && boostCap >= max {
		boostCap = max / 2
	}

	matches := make([]ScoredMatch, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate == nil || candidate.ID == query.ID {
			continue
		}

		candidateNorm := s.normalizer.Normalize(candidate)
		scores := s.scoreCriteria(query, &queryNorm, candidate, &candidateNorm, reference)
		if len(scores) == 0 {
			continue
		}

		weightedSum := 0.0
		weightSum := 0.0
		for _, criterion := range models.AllCriteria {
			score, ok := scores[criterion]
			if !ok {
				continue
			}
			weight := weights[criterion]
			if weight <= 0 {
				continue
			}
			weightedSum += weight * score
			weightSum += weight
		}
		if weightSum == 0 {
			continue
		}

		finalScore := weightedSum / weightSum
		finalScore = applyFeedbackBoost(finalScore, feedback[candidate.ID], boostCap, s.config.FeedbackMinSample)

		if finalScore < opts.MinScore {
			continue
		}

		matches = append(matches, ScoredMatch{
			Match: models.QuoteMatch{
				SourceQuoteID:   query.ID,
				MatchedQuoteID:  candidate.ID,
				SimilarityScore: finalScore,
				CriteriaScores:  scores,
			},
			Candidate: candidate,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Match.SimilarityScore == matches[j].Match.SimilarityScore {
			return matches[i].Candidate.CreatedAt.After(matches[j].Candidate.CreatedAt)
		}
		return matches[i].Match.SimilarityScore > matches[j].Match.SimilarityScore
	})

	if opts.MaxMatches > 0 && len(matches) > opts.MaxMatches {
		matches = matches[:opts.MaxMatches]
	}

	return matches
}

// scoreCriteria returns per-criterion scores in [0,1] for every criterion
// where both sides carry data. Absent criteria are omitted entirely.
func (s *SimilarityScorer) scoreCriteria(
	query *models.Quote, queryNorm *models.NormalizedQuote,
	candidate *models.Quote, candidateNorm *models.NormalizedQuote,
	reference time.Time,
) map[string]float64 {
	scores := make(map[string]float64)

	if queryNorm.OriginCity != "" && candidateNorm.OriginCity != "" {
		scores[models.CriterionOriginCity] = exactScore(queryNorm.OriginCity == candidateNorm.OriginCity)
	}
	if queryNorm.DestinationCity != "" && candidateNorm.DestinationCity != "" {
		scores[models.CriterionDestinationCity] = exactScore(queryNorm.DestinationCity == candidateNorm.DestinationCity)
	}

	if queryNorm.OriginRegion != models.RegionOther && candidateNorm.OriginRegion != models.RegionOther {
		scores[models.CriterionOriginRegion] = s.regionScore(queryNorm.OriginRegion, candidateNorm.OriginRegion)
	}
	if queryNorm.DestinationRegion != models.RegionOther && candidateNorm.DestinationRegion != models.RegionOther {
		scores[models.CriterionDestinationRegion] = s.regionScore(queryNorm.DestinationRegion, candidateNorm.DestinationRegion)
	}

	if strings.TrimSpace(query.ServiceType) != "" && strings.TrimSpace(candidate.ServiceType) != "" {
		scores[models.CriterionServiceType] = exactScore(queryNorm.ServiceCategory == candidateNorm.ServiceCategory)
		scores[models.CriterionServiceCompatibility] = s.serviceCompatibilityScore(queryNorm.ServiceCategory, candidateNorm.ServiceCategory)
	}

	if queryNorm.CargoCategory != models.CargoUnknown && candidateNorm.CargoCategory != models.CargoUnknown {
		scores[models.CriterionCargoCategory] = exactScore(queryNorm.CargoCategory == candidateNorm.CargoCategory)
	}

	if queryNorm.WeightLbs != nil && candidateNorm.WeightLbs != nil {
		scores[models.CriterionCargoWeightRange] = ratioDecayScore(*queryNorm.WeightLbs, *candidateNorm.WeightLbs, s.config.WeightRatioDecay)
	}

	if query.Pieces != nil && *query.Pieces > 0 && candidate.Pieces != nil && *candidate.Pieces > 0 {
		scores[models.CriterionNumberOfPieces] = ratioDecayScore(float64(*query.Pieces), float64(*candidate.Pieces), s.config.PiecesRatioDecay)
	}

	if query.Hazmat != nil && candidate.Hazmat != nil {
		scores[models.CriterionHazmat] = exactScore(*query.Hazmat == *candidate.Hazmat)
	}

	if query.ContainerType != nil && candidate.ContainerType != nil {
		queryContainer := s.normalizer.CleanText(*query.ContainerType)
		candidateContainer := s.normalizer.CleanText(*candidate.ContainerType)
		if queryContainer != "" && candidateContainer != "" {
			scores[models.CriterionContainerType] = exactScore(queryContainer == candidateContainer)
		}
	}

	if !candidate.CreatedAt.IsZero() {
		scores[models.CriterionRecency] = s.recencyScore(candidate.CreatedAt, reference)
	}

	if distance, ok := s.routeDistanceMiles(queryNorm, candidateNorm); ok {
		scores[models.CriterionDistanceSimilarity] = math.Exp(-distance / s.config.DistanceDecayMiles)
	}

	return scores
}

func (s *SimilarityScorer) regionScore(a, b models.Region) float64 {
	if a == b {
		return 1.0
	}
	return s.config.RegionPartialCredit
}

// serviceCompatibilityScore grants partial credit for service pairs that
// regularly substitute for each other on the same lane.
func (s *SimilarityScorer) serviceCompatibilityScore(a, b models.ServiceCategory) float64 {
	if a == b {
		return 1.0
	}
	if serviceCompatible(a, b) {
		return s.config.ServiceCompatCredit
	}
	return 0.0
}

func serviceCompatible(a, b models.ServiceCategory) bool {
	pair := func(x, y models.ServiceCategory) bool {
		return (a == x && b == y) || (a == y && b == x)
	}
	return pair(models.ServiceDrayage, models.ServiceIntermodal) ||
		pair(models.ServiceIntermodal, models.ServiceGround) ||
		pair(models.ServiceOcean, models.ServiceDrayage)
}

// recencyScore halves with every configured half-life elapsed between the
// candidate's creation and the reference time.
func (s *SimilarityScorer) recencyScore(created, reference time.Time) float64 {
	ageDays := reference.Sub(created).Hours() / 24
	if ageDays <= 0 {
		return 1.0
	}
	return math.Pow(0.5, ageDays/s.config.RecencyHalfLifeDays)
}

// routeDistanceMiles sums the origin-to-origin and destination-to-destination
// centroid distances between the two routes. This is a coarse proxy, not
// geocoding; quotes in OTHER regions have no centroid and skip the criterion.
func (s *SimilarityScorer) routeDistanceMiles(query, candidate *models.NormalizedQuote) (float64, bool) {
	qoLat, qoLon, ok := s.normalizer.RegionCentroid(query.OriginRegion)
	if !ok {
		return 0, false
	}
	qdLat, qdLon, ok := s.normalizer.RegionCentroid(query.DestinationRegion)
	if !ok {
		return 0, false
	}
	coLat, coLon, ok := s.normalizer.RegionCentroid(candidate.OriginRegion)
	if !ok {
		return 0, false
	}
	cdLat, cdLon, ok := s.normalizer.RegionCentroid(candidate.DestinationRegion)
	if !ok {
		return 0, false
	}

	return haversineMiles(qoLat, qoLon, coLat, coLon) + haversineMiles(qdLat, qdLon, cdLat, cdLon), true
}

func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(a))
}

// ratioDecayScore decays smoothly as the larger/smaller ratio of two positive
// magnitudes grows: 1.0 at parity, approaching 0 as they diverge.
func ratioDecayScore(a, b, decay float64) float64 {
	if a <= 0 || b <= 0 {
		return 0.0
	}
	ratio := a / b
	if ratio < 1 {
		ratio = 1 / ratio
	}
	return math.Exp(-decay * (ratio - 1))
}

func exactScore(equal bool) float64 {
	if equal {
		return 1.0
	}
	return 0.0
}

// applyFeedbackBoost nudges a final score by the candidate's historical
// feedback ratio, bounded by boostCap and clamped to [0,1]. Candidates with
// fewer than minSample ratings are left untouched.
func applyFeedbackBoost(score float64, fb *models.FeedbackData, boostCap float64, minSample int) float64 {
	if fb == nil || fb.TotalCount < minSample || fb.TotalCount == 0 {
		return clamp01(score)
	}
	ratio := float64(fb.PositiveCount-fb.NegativeCount) / float64(fb.TotalCount)
	return clamp01(score + ratio*boostCap)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
