package models

import (
	"time"

	"github.com/google/uuid"
)

type ServiceCategory string

const (
	ServiceGround     ServiceCategory = "GROUND"
	ServiceOcean      ServiceCategory = "OCEAN"
	ServiceDrayage    ServiceCategory = "DRAYAGE"
	ServiceIntermodal ServiceCategory = "INTERMODAL"
	ServiceAir        ServiceCategory = "AIR"
	ServiceOther      ServiceCategory = "OTHER"
)

type CargoCategory string

const (
	CargoMachinery  CargoCategory = "MACHINERY"
	CargoContainer  CargoCategory = "CONTAINER"
	CargoVehicle    CargoCategory = "VEHICLE"
	CargoIndustrial CargoCategory = "INDUSTRIAL"
	CargoGeneral    CargoCategory = "GENERAL"
	CargoUnknown    CargoCategory = "UNKNOWN"
)

type Region string

const (
	RegionNortheast Region = "NORTHEAST"
	RegionGulf      Region = "GULF"
	RegionWest      Region = "WEST"
	RegionSoutheast Region = "SOUTHEAST"
	RegionMidwest   Region = "MIDWEST"
	RegionOther     Region = "OTHER"
)

type Quote struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	OriginCity         string    `json:"origin_city" db:"origin_city"`
	OriginState        string    `json:"origin_state" db:"origin_state"`
	OriginCountry      string    `json:"origin_country" db:"origin_country"`
	DestinationCity    string    `json:"destination_city" db:"destination_city"`
	DestinationState   string    `json:"destination_state" db:"destination_state"`
	DestinationCountry string    `json:"destination_country" db:"destination_country"`
	ServiceType        string    `json:"service_type" db:"service_type"`
	CargoDescription   string    `json:"cargo_description" db:"cargo_description"`
	CargoWeight        *float64  `json:"cargo_weight,omitempty" db:"cargo_weight"`
	WeightUnit         string    `json:"weight_unit,omitempty" db:"weight_unit"` // lbs, kg
	Pieces             *int      `json:"pieces,omitempty" db:"pieces"`
	Hazmat             *bool     `json:"hazmat,omitempty" db:"hazmat"`
	ContainerType      *string   `json:"container_type,omitempty" db:"container_type"`
	FinalAgreedPrice   *float64  `json:"final_agreed_price,omitempty" db:"final_agreed_price"`
	InitialQuoteAmount *float64  `json:"initial_quote_amount,omitempty" db:"initial_quote_amount"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// RealizedPrice returns the price a historical quote actually closed at,
// preferring the final agreed price over the initial quote amount.
func (q *Quote) RealizedPrice() *float64 {
	if q.FinalAgreedPrice != nil && *q.FinalAgreedPrice > 0 {
		return q.FinalAgreedPrice
	}
	if q.InitialQuoteAmount != nil && *q.InitialQuoteAmount > 0 {
		return q.InitialQuoteAmount
	}
	return nil
}

// NormalizedQuote is the derived view the scorer works on. It is recomputed
// on every scoring call and never persisted, so taxonomy changes take effect
// immediately.
type NormalizedQuote struct {
	ServiceCategory   ServiceCategory `json:"service_category"`
	CargoCategory     CargoCategory   `json:"cargo_category"`
	OriginRegion      Region          `json:"origin_region"`
	DestinationRegion Region          `json:"destination_region"`
	OriginCity        string          `json:"origin_city"`
	DestinationCity   string          `json:"destination_city"`
	WeightLbs         *float64        `json:"weight_lbs,omitempty"`
}
