package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kha86lilo/quotescan/internal/config"
	"github.com/kha86lilo/quotescan/internal/validation"
	"github.com/kha86lilo/quotescan/pkg/models"
)

const validPricingJSON = `{
	"recommended_price": 3250.0,
	"floor_price": 2900.0,
	"target_price": 3250.0,
	"ceiling_price": 3600.0,
	"confidence": "HIGH",
	"reasoning": "Strong lane history with consistent realized prices"
}`

func testOracleConfig(baseURL string) *config.OracleConfig {
	return &config.OracleConfig{
		Enabled:    true,
		BaseURL:    baseURL,
		Model:      "freight-pricing-v2",
		Timeout:    500 * time.Millisecond,
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	}
}

func newTestOracle(t *testing.T, cfg *config.OracleConfig) *PricingOracleAdapter {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests

	validator, err := validation.NewSchemaValidator()
	require.NoError(t, err)

	return NewPricingOracleAdapter(cfg, validator, NewQuoteNormalizer(logger), logger)
}

func oracleContentBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{"content": content})
	require.NoError(t, err)
	return body
}

func TestPricingOracleAdapter_SuggestPricing(t *testing.T) {
	query := groundQuote(time.Now().AddDate(0, 0, -1), 0)
	matches := []ScoredMatch{
		{
			Match:     models.QuoteMatch{SimilarityScore: 0.95},
			Candidate: groundQuote(time.Now().AddDate(0, -1, 0), 3200),
		},
	}

	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "plain json content",
			content: validPricingJSON,
		},
		{
			name:    "markdown fenced content",
			content: "```json\n" + validPricingJSON + "\n```",
		},
		{
			name:    "bare fence without language tag",
			content: "```\n" + validPricingJSON + "\n```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/pricing/suggestions", r.URL.Path)

				var req oracleRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "freight-pricing-v2", req.Model)
				assert.Contains(t, req.Prompt, "QUOTE REQUEST")

				w.Header().Set("Content-Type", "application/json")
				w.Write(oracleContentBody(t, tt.content))
			}))
			defer server.Close()

			adapter := newTestOracle(t, testOracleConfig(server.URL))

			details, err := adapter.SuggestPricing(context.Background(), query, matches)
			require.NoError(t, err)
			require.NotNil(t, details)

			assert.Equal(t, 3250.0, details.RecommendedPrice)
			assert.Equal(t, 2900.0, details.FloorPrice)
			assert.Equal(t, 3600.0, details.CeilingPrice)
			assert.Equal(t, models.ConfidenceHigh, details.Confidence)
			assert.NotEmpty(t, details.Reasoning)
		})
	}
}

func TestPricingOracleAdapter_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporarily overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write(oracleContentBody(t, validPricingJSON))
	}))
	defer server.Close()

	adapter := newTestOracle(t, testOracleConfig(server.URL))
	query := groundQuote(time.Now(), 0)

	details, err := adapter.SuggestPricing(context.Background(), query, nil)
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPricingOracleAdapter_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	adapter := newTestOracle(t, testOracleConfig(server.URL))
	query := groundQuote(time.Now(), 0)

	details, err := adapter.SuggestPricing(context.Background(), query, nil)
	require.Error(t, err)
	assert.Nil(t, details)
	assert.True(t, errors.Is(err, ErrOracleUnavailable))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPricingOracleAdapter_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write(oracleContentBody(t, validPricingJSON))
	}))
	defer server.Close()

	cfg := testOracleConfig(server.URL)
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRetries = 0
	adapter := newTestOracle(t, cfg)
	query := groundQuote(time.Now(), 0)

	details, err := adapter.SuggestPricing(context.Background(), query, nil)
	require.Error(t, err)
	assert.Nil(t, details)
	assert.True(t, errors.Is(err, ErrOracleUnavailable))
}

func TestPricingOracleAdapter_RejectsMalformedResponses(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "not json",
			content: "I think around $3000 sounds right.",
		},
		{
			name: "missing required field",
			content: `{
				"floor_price": 2900.0,
				"target_price": 3250.0,
				"ceiling_price": 3600.0,
				"confidence": "HIGH"
			}`,
		},
		{
			name: "price band out of order",
			content: `{
				"recommended_price": 3250.0,
				"floor_price": 3600.0,
				"target_price": 3250.0,
				"ceiling_price": 2900.0,
				"confidence": "HIGH"
			}`,
		},
		{
			name: "recommended outside band",
			content: `{
				"recommended_price": 9999.0,
				"floor_price": 2900.0,
				"target_price": 3250.0,
				"ceiling_price": 3600.0,
				"confidence": "HIGH"
			}`,
		},
		{
			name: "unknown confidence tier",
			content: `{
				"recommended_price": 3250.0,
				"floor_price": 2900.0,
				"target_price": 3250.0,
				"ceiling_price": 3600.0,
				"confidence": "VERY_HIGH"
			}`,
		},
		{
			name:    "empty content",
			content: "   ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write(oracleContentBody(t, tt.content))
			}))
			defer server.Close()

			adapter := newTestOracle(t, testOracleConfig(server.URL))
			query := groundQuote(time.Now(), 0)

			details, err := adapter.SuggestPricing(context.Background(), query, nil)
			require.Error(t, err)
			assert.Nil(t, details)
			assert.True(t, errors.Is(err, ErrOracleUnavailable))
		})
	}
}

func TestPricingOracleAdapter_DisabledSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write(oracleContentBody(t, validPricingJSON))
	}))
	defer server.Close()

	cfg := testOracleConfig(server.URL)
	cfg.Enabled = false
	adapter := newTestOracle(t, cfg)
	query := groundQuote(time.Now(), 0)

	details, err := adapter.SuggestPricing(context.Background(), query, nil)
	require.Error(t, err)
	assert.Nil(t, details)
	assert.True(t, errors.Is(err, ErrOracleUnavailable))
	assert.Equal(t, int32(0), calls.Load())
}

func TestPricingOracleAdapter_GeneratePricingPrompt(t *testing.T) {
	adapter := newTestOracle(t, testOracleConfig("http://localhost"))

	query := groundQuote(time.Now(), 0)
	query.CargoDescription = "steel coils"
	query.Pieces = intPtr(4)
	query.Hazmat = boolPtr(true)

	candidate := groundQuote(time.Now().AddDate(0, -2, 0), 3200)
	matches := []ScoredMatch{
		{
			Match:     models.QuoteMatch{SimilarityScore: 0.93},
			Candidate: candidate,
		},
	}

	prompt := adapter.GeneratePricingPrompt(query, matches)

	assert.Contains(t, prompt, "Chicago, IL, US -> Atlanta, GA")
	assert.Contains(t, prompt, "category: GROUND")
	assert.Contains(t, prompt, "steel coils")
	assert.Contains(t, prompt, "Weight: 5000 lbs")
	assert.Contains(t, prompt, "Pieces: 4")
	assert.Contains(t, prompt, "Hazmat: yes")
	assert.Contains(t, prompt, "similarity 0.93")
	assert.Contains(t, prompt, "realized price $3200.00")
	assert.Contains(t, prompt, `"confidence": "HIGH"|"MEDIUM"|"LOW"`)
}

func TestPricingOracleAdapter_PromptCapsMatchCount(t *testing.T) {
	adapter := newTestOracle(t, testOracleConfig("http://localhost"))

	query := groundQuote(time.Now(), 0)
	matches := make([]ScoredMatch, 0, 12)
	for i := 0; i < 12; i++ {
		matches = append(matches, ScoredMatch{
			Match:     models.QuoteMatch{SimilarityScore: 0.9},
			Candidate: groundQuote(time.Now().AddDate(0, 0, -i), 3000+float64(i)*10),
		})
	}

	prompt := adapter.GeneratePricingPrompt(query, matches)

	assert.Contains(t, prompt, "5. similarity")
	assert.NotContains(t, prompt, "6. similarity")
}

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no fences",
			input:    `{"price": 1}`,
			expected: `{"price": 1}`,
		},
		{
			name:     "json fence",
			input:    "```json\n{\"price\": 1}\n```",
			expected: `{"price": 1}`,
		},
		{
			name:     "bare fence",
			input:    "```\n{\"price\": 1}\n```",
			expected: `{"price": 1}`,
		},
		{
			name:     "surrounding whitespace",
			input:    "  \n```json\n{\"price\": 1}\n```\n  ",
			expected: `{"price": 1}`,
		},
		{
			name:     "unterminated fence",
			input:    "```json\n{\"price\": 1}",
			expected: `{"price": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripMarkdownFences(tt.input))
		})
	}
}
