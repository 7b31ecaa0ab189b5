package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/config"
	"github.com/kha86lilo/quotescan/pkg/models"
)

// LaneStatsService aggregates realized pricing per lane (origin region,
// destination region, service category). Regions and categories are derived
// through the normalizer at read time, so taxonomy changes flow into lane
// stats as soon as the short Redis cache expires.
type LaneStatsService struct {
	db         DatabaseQuerier
	redis      *redis.Client
	normalizer *QuoteNormalizer
	config     *config.Config
	logger     *logrus.Logger
}

func NewLaneStatsService(db DatabaseQuerier, redisClient *redis.Client, normalizer *QuoteNormalizer, cfg *config.Config, logger *logrus.Logger) *LaneStatsService {
	return &LaneStatsService{
		db:         db,
		redis:      redisClient,
		normalizer: normalizer,
		config:     cfg,
		logger:     logger,
	}
}

// GetLaneStats returns aggregate stats for one lane, serving from Redis when
// a fresh aggregate exists. A lane with no priced history returns zero-count
// stats, not an error.
func (s *LaneStatsService) GetLaneStats(ctx context.Context, origin, destination models.Region, service models.ServiceCategory) (*models.LaneStats, error) {
	cacheKey := fmt.Sprintf("lane_stats:%s:%s:%s", origin, destination, service)

	if cached, err := s.getCachedStats(ctx, cacheKey); err == nil {
		return cached, nil
	}

	stats, err := s.computeLaneStats(ctx, origin, destination, service)
	if err != nil {
		return nil, err
	}

	s.cacheStats(ctx, cacheKey, stats)
	return stats, nil
}

func (s *LaneStatsService) computeLaneStats(ctx context.Context, origin, destination models.Region, service models.ServiceCategory) (*models.LaneStats, error) {
	query := `SELECT ` + quoteColumns + `
		FROM quotes
		WHERE final_agreed_price > 0 OR initial_quote_amount > 0
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, s.config.Matching.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query lane history: %w", err)
	}
	defer rows.Close()

	stats := &models.LaneStats{
		OriginRegion:      origin,
		DestinationRegion: destination,
		ServiceCategory:   service,
	}

	var total float64
	won := 0

	for rows.Next() {
		quote, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lane quote: %w", err)
		}

		normalized := s.normalizer.Normalize(quote)
		if normalized.OriginRegion != origin || normalized.DestinationRegion != destination || normalized.ServiceCategory != service {
			continue
		}

		price := quote.RealizedPrice()
		if price == nil {
			continue
		}

		stats.QuoteCount++
		total += *price
		if quote.FinalAgreedPrice != nil && *quote.FinalAgreedPrice > 0 {
			won++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lane history: %w", err)
	}

	if stats.QuoteCount > 0 {
		stats.AveragePrice = round2(total / float64(stats.QuoteCount))
		stats.WinRate = float64(won) / float64(stats.QuoteCount)
	}

	s.logger.WithFields(logrus.Fields{
		"origin_region":      origin,
		"destination_region": destination,
		"service_category":   service,
		"quote_count":        stats.QuoteCount,
	}).Debug("Computed lane statistics")

	return stats, nil
}

func (s *LaneStatsService) getCachedStats(ctx context.Context, key string) (*models.LaneStats, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("cache disabled")
	}

	cached := s.redis.Get(ctx, key).Val()
	if cached == "" {
		return nil, fmt.Errorf("cache miss")
	}

	var stats models.LaneStats
	if err := json.Unmarshal([]byte(cached), &stats); err != nil {
		return nil, err
	}

	return &stats, nil
}

func (s *LaneStatsService) cacheStats(ctx context.Context, key string, stats *models.LaneStats) {
	if s.redis == nil {
		return
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return
	}

	if err := s.redis.Set(ctx, key, data, s.config.Estimator.LaneCacheTTL).Err(); err != nil {
		s.logger.WithError(err).Debug("Failed to cache lane statistics")
	}
}
