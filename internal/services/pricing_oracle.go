package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/config"
	"github.com/kha86lilo/quotescan/internal/validation"
	"github.com/kha86lilo/quotescan/pkg/models"
)

// ErrOracleUnavailable reports that the external pricing oracle could not
// produce a usable response. Callers fall back to the match-based estimate.
var ErrOracleUnavailable = errors.New("pricing oracle unavailable")

// maxPromptMatches caps how many comparable quotes are included in the
// generated prompt.
const maxPromptMatches = 5

// PricingOracleAdapter formats pricing prompts for the external oracle and
// coerces its responses into AIPricingDetails. The oracle response is treated
// as an untrusted payload: it is schema-validated and sanity-checked before
// anything downstream sees it.
type PricingOracleAdapter struct {
	httpClient *http.Client
	config     *config.OracleConfig
	validator  *validation.SchemaValidator
	normalizer *QuoteNormalizer
	logger     *logrus.Logger
}

func NewPricingOracleAdapter(cfg *config.OracleConfig, validator *validation.SchemaValidator, normalizer *QuoteNormalizer, logger *logrus.Logger) *PricingOracleAdapter {
	return &PricingOracleAdapter{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config:     cfg,
		validator:  validator,
		normalizer: normalizer,
		logger:     logger,
	}
}

type oracleRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type oracleResponse struct {
	Content string `json:"content"`
}

// SuggestPricing asks the oracle for a price recommendation built from the
// query quote and its top matches. Every failure mode (network, timeout,
// non-2xx, malformed payload) is wrapped in ErrOracleUnavailable so the
// orchestrator can degrade to the match-based estimate.
func (a *PricingOracleAdapter) SuggestPricing(ctx context.Context, query *models.Quote, matches []ScoredMatch) (*models.AIPricingDetails, error) {
	if !a.config.Enabled {
		return nil, fmt.Errorf("%w: disabled by configuration", ErrOracleUnavailable)
	}

	prompt := a.GeneratePricingPrompt(query, matches)

	body, err := json.Marshal(oracleRequest{
		Model:  a.config.Model,
		Prompt: prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrOracleUnavailable, err)
	}

	var lastErr error
	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := a.config.RetryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, ctx.Err())
			case <-time.After(delay):
			}
			a.logger.WithFields(logrus.Fields{
				"quote_id": query.ID,
				"attempt":  attempt + 1,
			}).Debug("Retrying pricing oracle request")
		}

		details, retryable, err := a.requestPricing(ctx, body)
		if err == nil {
			a.logger.WithFields(logrus.Fields{
				"quote_id":          query.ID,
				"recommended_price": details.RecommendedPrice,
				"confidence":        details.Confidence,
			}).Debug("Pricing oracle responded")
			return details, nil
		}

		lastErr = err
		if !retryable {
			break
		}
	}

	a.logger.WithError(lastErr).WithField("quote_id", query.ID).Warn("Pricing oracle unavailable, falling back to match-based estimate")
	return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, lastErr)
}

// requestPricing performs one HTTP round trip. The bool return reports whether
// the failure is worth retrying: network errors, 5xx and 429 are, everything
// else is not.
func (a *PricingOracleAdapter) requestPricing(ctx context.Context, body []byte) (*models.AIPricingDetails, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	url := strings.TrimRight(a.config.BaseURL, "/") + "/pricing/suggestions"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to parsing
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, snippet(respBody, 200))
	default:
		return nil, false, fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, snippet(respBody, 200))
	}

	details, err := a.parsePricingResponse(respBody)
	if err != nil {
		return nil, false, err
	}
	return details, false, nil
}

func (a *PricingOracleAdapter) parsePricingResponse(body []byte) (*models.AIPricingDetails, error) {
	var envelope oracleResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parse response envelope: %w", err)
	}
	if strings.TrimSpace(envelope.Content) == "" {
		return nil, fmt.Errorf("empty oracle response content")
	}

	payload := stripMarkdownFences(envelope.Content)

	result := a.validator.ValidateAIPricingDetails(payload)
	if result == nil || !result.Valid {
		summary := "schema validation failed"
		if result != nil {
			summary = result.ErrorSummary()
		}
		return nil, fmt.Errorf("oracle response failed validation: %s", summary)
	}

	var details models.AIPricingDetails
	if err := json.Unmarshal([]byte(payload), &details); err != nil {
		return nil, fmt.Errorf("decode pricing details: %w", err)
	}

	if details.FloorPrice > details.TargetPrice || details.TargetPrice > details.CeilingPrice {
		return nil, fmt.Errorf("price band out of order: floor=%.2f target=%.2f ceiling=%.2f",
			details.FloorPrice, details.TargetPrice, details.CeilingPrice)
	}
	if details.RecommendedPrice < details.FloorPrice || details.RecommendedPrice > details.CeilingPrice {
		return nil, fmt.Errorf("recommended price %.2f outside band [%.2f, %.2f]",
			details.RecommendedPrice, details.FloorPrice, details.CeilingPrice)
	}

	return &details, nil
}

// GeneratePricingPrompt builds the structured prompt sent to the oracle:
// the query quote's route/cargo profile followed by the top comparable
// historical quotes with their realized prices.
func (a *PricingOracleAdapter) GeneratePricingPrompt(query *models.Quote, matches []ScoredMatch) string {
	normalized := a.normalizer.Normalize(query)

	var b strings.Builder
	b.WriteString("You are a freight pricing analyst. Recommend pricing for the following shipment request.\n\n")

	b.WriteString("QUOTE REQUEST:\n")
	fmt.Fprintf(&b, "- Route: %s -> %s\n",
		formatLocation(query.OriginCity, query.OriginState, query.OriginCountry),
		formatLocation(query.DestinationCity, query.DestinationState, query.DestinationCountry))
	fmt.Fprintf(&b, "- Service: %s (category: %s)\n", orUnspecified(query.ServiceType), normalized.ServiceCategory)
	fmt.Fprintf(&b, "- Cargo: %s (category: %s)\n", orUnspecified(query.CargoDescription), normalized.CargoCategory)
	if normalized.WeightLbs != nil {
		fmt.Fprintf(&b, "- Weight: %.0f lbs\n", *normalized.WeightLbs)
	}
	if query.Pieces != nil && *query.Pieces > 0 {
		fmt.Fprintf(&b, "- Pieces: %d\n", *query.Pieces)
	}
	if query.Hazmat != nil && *query.Hazmat {
		b.WriteString("- Hazmat: yes\n")
	}
	if query.ContainerType != nil && strings.TrimSpace(*query.ContainerType) != "" {
		fmt.Fprintf(&b, "- Container: %s\n", *query.ContainerType)
	}

	b.WriteString("\nCOMPARABLE HISTORICAL QUOTES:\n")
	if len(matches) == 0 {
		b.WriteString("(no comparable quotes found)\n")
	}
	for i, m := range matches {
		if i >= maxPromptMatches {
			break
		}
		candidate := m.Candidate
		fmt.Fprintf(&b, "%d. similarity %.2f: %s -> %s, %s",
			i+1, m.Match.SimilarityScore,
			formatLocation(candidate.OriginCity, candidate.OriginState, ""),
			formatLocation(candidate.DestinationCity, candidate.DestinationState, ""),
			orUnspecified(candidate.ServiceType))
		if w := a.normalizer.Normalize(candidate).WeightLbs; w != nil {
			fmt.Fprintf(&b, ", %.0f lbs", *w)
		}
		if price := candidate.RealizedPrice(); price != nil {
			fmt.Fprintf(&b, ", realized price $%.2f", *price)
		}
		if !candidate.CreatedAt.IsZero() {
			fmt.Fprintf(&b, " (quoted %s)", candidate.CreatedAt.Format("2006-01-02"))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nRespond with a single JSON object and nothing else:\n")
	b.WriteString(`{"recommended_price": <number>, "floor_price": <number>, "target_price": <number>, "ceiling_price": <number>, "confidence": "HIGH"|"MEDIUM"|"LOW", "reasoning": "<string>", "breakdown": {"linehaul": <number>, "fuel_surcharge": <number>, "accessorials": <number>, "margin": <number>}, "market_factors": ["<string>"]}`)
	b.WriteString("\nAll prices are total USD for the shipment, with floor_price <= target_price <= ceiling_price.\n")

	return b.String()
}

// stripMarkdownFences removes a surrounding ```json / ``` fence that some
// oracle models wrap their JSON output in.
func stripMarkdownFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func formatLocation(city, state, country string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{city, state, country} {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, ", ")
}

func orUnspecified(s string) string {
	if trimmed := strings.TrimSpace(s); trimmed != "" {
		return trimmed
	}
	return "unspecified"
}

func snippet(body []byte, limit int) string {
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
