package models

import "time"

// Criterion names used in WeightVector and per-match criteria score maps.
const (
	CriterionOriginRegion         = "origin_region"
	CriterionOriginCity           = "origin_city"
	CriterionDestinationRegion    = "destination_region"
	CriterionDestinationCity      = "destination_city"
	CriterionServiceType          = "service_type"
	CriterionServiceCompatibility = "service_compatibility"
	CriterionCargoCategory        = "cargo_category"
	CriterionCargoWeightRange     = "cargo_weight_range"
	CriterionNumberOfPieces       = "number_of_pieces"
	CriterionHazmat               = "hazmat"
	CriterionContainerType        = "container_type"
	CriterionRecency              = "recency"
	CriterionDistanceSimilarity   = "distance_similarity"
)

// AllCriteria lists every scoring criterion in a stable order.
var AllCriteria = []string{
	CriterionOriginRegion,
	CriterionOriginCity,
	CriterionDestinationRegion,
	CriterionDestinationCity,
	CriterionServiceType,
	CriterionServiceCompatibility,
	CriterionCargoCategory,
	CriterionCargoWeightRange,
	CriterionNumberOfPieces,
	CriterionHazmat,
	CriterionContainerType,
	CriterionRecency,
	CriterionDistanceSimilarity,
}

// WeightVector maps criterion name to a non-negative weight. Weights are not
// required to sum to 1; the scorer normalizes by the sum of weights actually
// applicable to a pair.
type WeightVector map[string]float64

// DefaultWeightVector returns the production default weighting.
func DefaultWeightVector() WeightVector {
	return WeightVector{
		CriterionServiceType:          0.18,
		CriterionCargoWeightRange:     0.15,
		CriterionCargoCategory:        0.12,
		CriterionDistanceSimilarity:   0.12,
		CriterionDestinationRegion:    0.09,
		CriterionOriginRegion:         0.07,
		CriterionOriginCity:           0.04,
		CriterionDestinationCity:      0.04,
		CriterionServiceCompatibility: 0.04,
		CriterionNumberOfPieces:       0.03,
		CriterionHazmat:               0.03,
		CriterionContainerType:        0.04,
		CriterionRecency:              0.05,
	}
}

func (w WeightVector) Clone() WeightVector {
	out := make(WeightVector, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// MaxWeight returns the largest single criterion weight. The feedback boost
// cap must stay strictly below this value.
func (w WeightVector) MaxWeight() float64 {
	max := 0.0
	for _, v := range w {
		if v > max {
			max = v
		}
	}
	return max
}

type WeightVectorVersion struct {
	Version   int          `json:"version" db:"version"`
	Weights   WeightVector `json:"weights" db:"weights"`
	Note      *string      `json:"note,omitempty" db:"note"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// LearningReport summarizes one weight adjustment run.
type LearningReport struct {
	Ran            bool               `json:"ran"`
	SamplesUsed    int                `json:"samples_used"`
	CellsChanged   int                `json:"cells_changed"`
	Adjustments    map[string]float64 `json:"adjustments,omitempty"` // criterion -> signed delta
	NewVersion     int                `json:"new_version,omitempty"`
	TotalMagnitude float64            `json:"total_magnitude"`
}
