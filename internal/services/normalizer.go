package services

import (
	"html"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/kha86lilo/quotescan/pkg/models"
)

const kgToLbs = 2.20462

// serviceRule maps keyword evidence to a service category. Rules are
// evaluated in order; the first hit wins.
type serviceRule struct {
	category models.ServiceCategory
	keywords []string
}

// cargoRule is the same shape for cargo classification. Order encodes the
// documented precedence: MACHINERY outranks CONTAINER, so "40ft container of
// machinery" classifies as MACHINERY.
type cargoRule struct {
	category models.CargoCategory
	keywords []string
}

// QuoteNormalizer canonicalizes free-text quote fields into the fixed
// service, cargo, and region taxonomies. All classification is pure table
// lookup; unknown input degrades to the least informative category and never
// errors.
type QuoteNormalizer struct {
	logger          *logrus.Logger
	serviceRules    []serviceRule
	cargoRules      []cargoRule
	regionsByState  map[string]models.Region
	regionCentroids map[models.Region][2]float64 // lat, lon
	htmlTagRegex    *regexp.Regexp
	specialRegex    *regexp.Regexp
	spaceRegex      *regexp.Regexp
}

func NewQuoteNormalizer(logger *logrus.Logger) *QuoteNormalizer {
	return &QuoteNormalizer{
		logger:          logger,
		serviceRules:    initializeServiceRules(),
		cargoRules:      initializeCargoRules(),
		regionsByState:  initializeRegionTable(),
		regionCentroids: initializeRegionCentroids(),
		htmlTagRegex:    regexp.MustCompile(`<[^>]*>`),
		specialRegex:    regexp.MustCompile(`[^\p{L}\p{N}\s\-.,'/&]+`),
		spaceRegex:      regexp.MustCompile(`\s+`),
	}
}

// Normalize derives the scoring view of a quote. The result is recomputed on
// every call so taxonomy changes apply immediately; callers must not cache it.
func (n *QuoteNormalizer) Normalize(quote *models.Quote) models.NormalizedQuote {
	normalized := models.NormalizedQuote{
		ServiceCategory:   n.NormalizeServiceType(quote.ServiceType),
		CargoCategory:     n.ClassifyCargo(quote.CargoDescription),
		OriginRegion:      n.ClassifyRegion(quote.OriginState),
		DestinationRegion: n.ClassifyRegion(quote.DestinationState),
		OriginCity:        n.CleanText(quote.OriginCity),
		DestinationCity:   n.CleanText(quote.DestinationCity),
	}

	if quote.CargoWeight != nil && *quote.CargoWeight > 0 {
		lbs := *quote.CargoWeight
		if strings.EqualFold(strings.TrimSpace(quote.WeightUnit), "kg") {
			lbs *= kgToLbs
		}
		normalized.WeightLbs = &lbs
	}

	return normalized
}

// NormalizeServiceType maps free text like "LTL Ground" or "drayage - port"
// onto the closed service set. Empty or unrecognized input maps to OTHER.
func (n *QuoteNormalizer) NormalizeServiceType(raw string) models.ServiceCategory {
	text := n.CleanText(raw)
	if text == "" {
		return models.ServiceOther
	}

	for _, rule := range n.serviceRules {
		for _, keyword := range rule.keywords {
			if containsKeyword(text, keyword) {
				return rule.category
			}
		}
	}

	return models.ServiceOther
}

// ClassifyCargo runs the ordered cargo keyword rules over a description.
// Empty input maps to UNKNOWN, text matching no rule to GENERAL.
func (n *QuoteNormalizer) ClassifyCargo(description string) models.CargoCategory {
	text := n.CleanText(description)
	if text == "" {
		return models.CargoUnknown
	}

	for _, rule := range n.cargoRules {
		for _, keyword := range rule.keywords {
			if containsKeyword(text, keyword) {
				return rule.category
			}
		}
	}

	return models.CargoGeneral
}

// ClassifyRegion buckets a state or province into a macro-region. Unknown
// states map to OTHER.
func (n *QuoteNormalizer) ClassifyRegion(state string) models.Region {
	key := strings.ToUpper(strings.TrimSpace(state))
	if key == "" {
		return models.RegionOther
	}

	if region, ok := n.regionsByState[key]; ok {
		return region
	}

	return models.RegionOther
}

// RegionCentroid returns the coarse lat/lon used by the distance proxy.
// OTHER has no centroid.
func (n *QuoteNormalizer) RegionCentroid(region models.Region) (float64, float64, bool) {
	centroid, ok := n.regionCentroids[region]
	if !ok {
		return 0, 0, false
	}
	return centroid[0], centroid[1], true
}

// CleanText lowercases and strips markup, entities, and noise characters so
// keyword matching and city comparison are stable across sources.
func (n *QuoteNormalizer) CleanText(text string) string {
	cleaned := n.htmlTagRegex.ReplaceAllString(text, " ")
	cleaned = html.UnescapeString(cleaned)
	cleaned = norm.NFC.String(cleaned)
	cleaned = n.specialRegex.ReplaceAllString(cleaned, " ")
	cleaned = n.spaceRegex.ReplaceAllString(cleaned, " ")
	return strings.ToLower(strings.TrimSpace(cleaned))
}

// containsKeyword matches compound keywords as substrings and single words
// as whole tokens, so "air" never fires on "fairview".
func containsKeyword(text, keyword string) bool {
	if strings.ContainsAny(keyword, " -/") {
		return strings.Contains(text, keyword)
	}
	for _, token := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '/' || r == '-'
	}) {
		if token == keyword {
			return true
		}
	}
	return false
}

func initializeServiceRules() []serviceRule {
	return []serviceRule{
		{models.ServiceDrayage, []string{"drayage", "dray", "port pickup", "port delivery", "container pickup"}},
		{models.ServiceIntermodal, []string{"intermodal", "imdl", "rail", "piggyback"}},
		{models.ServiceOcean, []string{"ocean", "sea", "fcl", "lcl", "vessel", "maritime", "ro-ro", "roro"}},
		{models.ServiceAir, []string{"air", "airfreight", "air freight", "air cargo"}},
		{models.ServiceGround, []string{"ground", "ltl", "ftl", "otr", "truckload", "trucking", "flatbed", "dry van", "hotshot", "reefer", "step deck", "lowboy"}},
	}
}

func initializeCargoRules() []cargoRule {
	return []cargoRule{
		{models.CargoMachinery, []string{"machinery", "machine", "excavator", "crane", "forklift", "lathe", "cnc", "generator", "compressor", "turbine", "press", "loader", "dozer", "backhoe"}},
		{models.CargoVehicle, []string{"vehicle", "car", "truck", "tractor", "bus", "van", "automobile", "suv", "motorcycle", "atv", "rv"}},
		{models.CargoContainer, []string{"container", "20ft", "40ft", "45ft", "teu", "conex"}},
		{models.CargoIndustrial, []string{"steel", "pipe", "pipes", "lumber", "coil", "coils", "rebar", "beam", "beams", "cement", "chemical", "chemicals", "drum", "drums", "aggregate"}},
		{models.CargoGeneral, []string{"pallet", "pallets", "box", "boxes", "crate", "crates", "carton", "cartons", "freight", "goods", "merchandise", "general"}},
	}
}

func initializeRegionTable() map[string]models.Region {
	table := map[models.Region][]string{
		models.RegionNortheast: {
			"ME", "MAINE", "NH", "NEW HAMPSHIRE", "VT", "VERMONT", "MA", "MASSACHUSETTS",
			"RI", "RHODE ISLAND", "CT", "CONNECTICUT", "NY", "NEW YORK", "NJ", "NEW JERSEY",
			"PA", "PENNSYLVANIA", "MD", "MARYLAND", "DE", "DELAWARE", "DC",
		},
		models.RegionSoutheast: {
			"VA", "VIRGINIA", "WV", "WEST VIRGINIA", "NC", "NORTH CAROLINA", "SC", "SOUTH CAROLINA",
			"GA", "GEORGIA", "FL", "FLORIDA", "KY", "KENTUCKY", "TN", "TENNESSEE",
		},
		models.RegionGulf: {
			"TX", "TEXAS", "LA", "LOUISIANA", "MS", "MISSISSIPPI", "AL", "ALABAMA",
			"AR", "ARKANSAS", "OK", "OKLAHOMA",
		},
		models.RegionMidwest: {
			"OH", "OHIO", "IN", "INDIANA", "IL", "ILLINOIS", "MI", "MICHIGAN",
			"WI", "WISCONSIN", "MN", "MINNESOTA", "IA", "IOWA", "MO", "MISSOURI",
			"ND", "NORTH DAKOTA", "SD", "SOUTH DAKOTA", "NE", "NEBRASKA", "KS", "KANSAS",
		},
		models.RegionWest: {
			"MT", "MONTANA", "WY", "WYOMING", "CO", "COLORADO", "NM", "NEW MEXICO",
			"AZ", "ARIZONA", "UT", "UTAH", "NV", "NEVADA", "ID", "IDAHO",
			"WA", "WASHINGTON", "OR", "OREGON", "CA", "CALIFORNIA", "AK", "ALASKA", "HI", "HAWAII",
		},
	}

	byState := make(map[string]models.Region)
	for region, states := range table {
		for _, state := range states {
			byState[state] = region
		}
	}
	return byState
}

func initializeRegionCentroids() map[models.Region][2]float64 {
	return map[models.Region][2]float64{
		models.RegionNortheast: {41.5, -75.5},
		models.RegionSoutheast: {33.5, -83.5},
		models.RegionGulf:      {31.0, -95.0},
		models.RegionMidwest:   {41.5, -89.0},
		models.RegionWest:      {39.5, -111.0},
	}
}
