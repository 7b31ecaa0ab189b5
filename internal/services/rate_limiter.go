package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/config"
)

// RateLimitService enforces a per-service sliding window quota in Redis.
// Keys are the authenticated service name, so one noisy dashboard cannot
// starve the scheduler's batch runs.
type RateLimitService struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
}

type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func NewRateLimitService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client) *RateLimitService {
	return &RateLimitService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
	}
}

// Allow records the request and reports whether it fits the window. The
// request is added to the window even when rejected, so hammering a limited
// key does not shorten the wait.
func (s *RateLimitService) Allow(ctx context.Context, serviceName string) (*RateLimitInfo, bool, error) {
	limit := s.config.Security.RateLimit.Requests
	window := s.config.Security.RateLimit.Window

	key := fmt.Sprintf("rate_limit:service:%s", serviceName)
	now := time.Now()
	windowStart := now.Add(-window).UnixMilli()

	pipe := s.redisClient.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	count := countCmd.Val()
	remaining := limit - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}

	info := &RateLimitInfo{
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}
	return info, count < int64(limit), nil
}

// Reset clears the window for one service.
func (s *RateLimitService) Reset(ctx context.Context, serviceName string) error {
	key := fmt.Sprintf("rate_limit:service:%s", serviceName)
	return s.redisClient.Del(ctx, key).Err()
}
