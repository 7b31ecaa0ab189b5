package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/config"
	"github.com/kha86lilo/quotescan/internal/database"
)

// HealthService pings the engine's dependencies. Postgres is critical (no
// quotes, no matching); Redis only degrades job tracking and the lane cache.
type HealthService struct {
	config *config.Config
	logger *logrus.Logger
	db     *database.Database

	healthCheckStatus *prometheus.GaugeVec
	poolUsage         *prometheus.GaugeVec
}

type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
	Critical    []string          `json:"critical_failures,omitempty"`
	NonCritical []string          `json:"non_critical_failures,omitempty"`
}

func NewHealthService(cfg *config.Config, logger *logrus.Logger, db *database.Database) *HealthService {
	hs := &HealthService{
		config: cfg,
		logger: logger,
		db:     db,
	}

	hs.healthCheckStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"})

	hs.poolUsage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "database_connection_pool_usage",
		Help: "PostgreSQL connection pool usage by state",
	}, []string{"state"})

	// Register tolerates repeats so tests can construct the service freely.
	for _, c := range []prometheus.Collector{hs.healthCheckStatus, hs.poolUsage} {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				logger.WithError(err).Warn("Failed to register health metric")
			}
		}
	}

	go hs.collectPoolMetrics()

	return hs
}

func (s *HealthService) CheckHealth() *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	criticalHealthy := true
	if err := s.checkPostgreSQL(); err != nil {
		status.Services["postgresql"] = "unhealthy"
		status.Critical = append(status.Critical, "postgresql")
		criticalHealthy = false
		s.logger.WithError(err).Error("PostgreSQL is unhealthy")
		s.healthCheckStatus.WithLabelValues("postgresql").Set(0)
	} else {
		status.Services["postgresql"] = "healthy"
		s.healthCheckStatus.WithLabelValues("postgresql").Set(1)
	}

	if err := s.checkRedis(); err != nil {
		status.Services["redis"] = "unhealthy"
		status.NonCritical = append(status.NonCritical, "redis")
		s.logger.WithError(err).Warn("Redis is unhealthy")
		s.healthCheckStatus.WithLabelValues("redis").Set(0)
	} else {
		status.Services["redis"] = "healthy"
		s.healthCheckStatus.WithLabelValues("redis").Set(1)
	}

	switch {
	case !criticalHealthy:
		status.Status = "unhealthy"
	case len(status.NonCritical) > 0:
		status.Status = "degraded"
	default:
		status.Status = "healthy"
	}

	return status
}

func (s *HealthService) checkPostgreSQL() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.db.PG.Ping(ctx)
}

func (s *HealthService) checkRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.db.Redis.Ping(ctx).Err()
}

func (s *HealthService) collectPoolMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if s.db == nil || s.db.PG == nil {
			continue
		}
		stats := s.db.PG.Stat()

		s.poolUsage.WithLabelValues("acquired").Set(float64(stats.AcquiredConns()))
		s.poolUsage.WithLabelValues("idle").Set(float64(stats.IdleConns()))
		s.poolUsage.WithLabelValues("total").Set(float64(stats.TotalConns()))
		s.poolUsage.WithLabelValues("max").Set(float64(stats.MaxConns()))
	}
}
