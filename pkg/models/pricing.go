package models

import (
	"time"

	"github.com/google/uuid"
)

type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "HIGH"
	ConfidenceMedium ConfidenceTier = "MEDIUM"
	ConfidenceLow    ConfidenceTier = "LOW"
)

type PriceBreakdown struct {
	Linehaul      float64 `json:"linehaul"`
	FuelSurcharge float64 `json:"fuel_surcharge"`
	Accessorials  float64 `json:"accessorials"`
	Margin        float64 `json:"margin"`
}

// AIPricingDetails is the validated shape of a pricing oracle response.
type AIPricingDetails struct {
	RecommendedPrice float64         `json:"recommended_price"`
	FloorPrice       float64         `json:"floor_price"`
	TargetPrice      float64         `json:"target_price"`
	CeilingPrice     float64         `json:"ceiling_price"`
	Confidence       ConfidenceTier  `json:"confidence"`
	Reasoning        string          `json:"reasoning,omitempty"`
	Breakdown        *PriceBreakdown `json:"breakdown,omitempty"`
	MarketFactors    []string        `json:"market_factors,omitempty"`
}

type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// PriceEstimate is the match-based estimate produced by the price estimator.
type PriceEstimate struct {
	WeightedAverage float64    `json:"weighted_average"`
	Range           PriceRange `json:"range"`
	Confidence      float64    `json:"confidence"`
	BasedOn         int        `json:"based_on"` // number of contributing matches
	LaneAdjusted    bool       `json:"lane_adjusted,omitempty"`
}

// LaneStats aggregates realized pricing over an origin-region /
// destination-region / service-category triple.
type LaneStats struct {
	OriginRegion      Region          `json:"origin_region"`
	DestinationRegion Region          `json:"destination_region"`
	ServiceCategory   ServiceCategory `json:"service_category"`
	AveragePrice      float64         `json:"average_price"`
	QuoteCount        int             `json:"quote_count"`
	WinRate           float64         `json:"win_rate"`
}

type PricingOutcome struct {
	QuoteID             uuid.UUID `json:"quote_id" db:"quote_id"`
	ActualPriceQuoted   *float64  `json:"actual_price_quoted,omitempty" db:"actual_price_quoted"`
	ActualPriceAccepted *float64  `json:"actual_price_accepted,omitempty" db:"actual_price_accepted"`
	JobWon              *bool     `json:"job_won,omitempty" db:"job_won"`
	RecordedAt          time.Time `json:"recorded_at" db:"recorded_at"`
}
