package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Matching   MatchingConfig   `mapstructure:"matching"`
	Estimator  EstimatorConfig  `mapstructure:"estimator"`
	Learning   LearningConfig   `mapstructure:"learning"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	Topics        struct {
		FeedbackEvents string `mapstructure:"feedback_events"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	ServiceKeys []string      `mapstructure:"service_keys"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MatchingConfig carries the scorer defaults and the tunable curve
// parameters. The numeric defaults are empirically tuned; only the
// monotonic-decay shapes are load-bearing.
type MatchingConfig struct {
	MinScore            float64 `mapstructure:"min_score"`
	MaxMatches          int     `mapstructure:"max_matches"`
	CandidateLimit      int     `mapstructure:"candidate_limit"`
	OnlyWithPrice       bool    `mapstructure:"only_with_price"`
	RegionPartialCredit float64 `mapstructure:"region_partial_credit"`
	ServiceCompatCredit float64 `mapstructure:"service_compat_credit"`
	WeightRatioDecay    float64 `mapstructure:"weight_ratio_decay"`
	PiecesRatioDecay    float64 `mapstructure:"pieces_ratio_decay"`
	DistanceDecayMiles  float64 `mapstructure:"distance_decay_miles"`
	RecencyHalfLifeDays float64 `mapstructure:"recency_half_life_days"`
	FeedbackBoostCap    float64 `mapstructure:"feedback_boost_cap"`
	FeedbackMinSample   int     `mapstructure:"feedback_min_sample"`
}

type EstimatorConfig struct {
	DefaultPriceConfidence float64       `mapstructure:"default_price_confidence"`
	RangeLowFactor         float64       `mapstructure:"range_low_factor"`
	RangeHighFactor        float64       `mapstructure:"range_high_factor"`
	LaneConfidenceFloor    float64       `mapstructure:"lane_confidence_floor"`
	LaneMinSamples         int           `mapstructure:"lane_min_samples"`
	LaneBlendWeight        float64       `mapstructure:"lane_blend_weight"`
	LaneCacheTTL           time.Duration `mapstructure:"lane_cache_ttl"`
}

type LearningConfig struct {
	Enabled              bool    `mapstructure:"enabled"`
	EveryNBatches        int     `mapstructure:"every_n_batches"`
	StepSize             float64 `mapstructure:"step_size"`
	MinSamples           int     `mapstructure:"min_samples"`
	CorrelationThreshold float64 `mapstructure:"correlation_threshold"`
	MinWeight            float64 `mapstructure:"min_weight"`
}

type OracleConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type JobsConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds requests per authenticated service over a sliding
// window.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.consumer_group", "quotescan-feedback")
	viper.SetDefault("kafka.topics.feedback_events", "quotescan.feedback.events")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Matching defaults
	viper.SetDefault("matching.min_score", 0.3)
	viper.SetDefault("matching.max_matches", 5)
	viper.SetDefault("matching.candidate_limit", 500)
	viper.SetDefault("matching.only_with_price", true)
	viper.SetDefault("matching.region_partial_credit", 0.3)
	viper.SetDefault("matching.service_compat_credit", 0.5)
	viper.SetDefault("matching.weight_ratio_decay", 1.5)
	viper.SetDefault("matching.pieces_ratio_decay", 1.0)
	viper.SetDefault("matching.distance_decay_miles", 750.0)
	viper.SetDefault("matching.recency_half_life_days", 180.0)
	viper.SetDefault("matching.feedback_boost_cap", 0.05)
	viper.SetDefault("matching.feedback_min_sample", 3)

	// Estimator defaults
	viper.SetDefault("estimator.default_price_confidence", 0.5)
	viper.SetDefault("estimator.range_low_factor", 0.9)
	viper.SetDefault("estimator.range_high_factor", 1.1)
	viper.SetDefault("estimator.lane_confidence_floor", 0.5)
	viper.SetDefault("estimator.lane_min_samples", 10)
	viper.SetDefault("estimator.lane_blend_weight", 0.3)
	viper.SetDefault("estimator.lane_cache_ttl", "10m")

	// Learning defaults
	viper.SetDefault("learning.enabled", true)
	viper.SetDefault("learning.every_n_batches", 10)
	viper.SetDefault("learning.step_size", 0.01)
	viper.SetDefault("learning.min_samples", 20)
	viper.SetDefault("learning.correlation_threshold", 0.2)
	viper.SetDefault("learning.min_weight", 0.01)

	// Oracle defaults
	viper.SetDefault("oracle.enabled", true)
	viper.SetDefault("oracle.base_url", "https://api.pricing-oracle.internal/v1")
	viper.SetDefault("oracle.model", "freight-pricing-v2")
	viper.SetDefault("oracle.timeout", "20s")
	viper.SetDefault("oracle.max_retries", 2)
	viper.SetDefault("oracle.retry_delay", "1s")

	// Job tracking defaults
	viper.SetDefault("jobs.ttl", "24h")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
	viper.SetDefault("security.rate_limit.enabled", true)
	viper.SetDefault("security.rate_limit.requests", 120)
	viper.SetDefault("security.rate_limit.window", "1m")
}
