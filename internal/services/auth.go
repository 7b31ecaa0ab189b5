package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/config"
	"github.com/kha86lilo/quotescan/pkg/models"
)

// AuthService issues and validates HS256 service tokens for the ops API.
// Tokens identify calling services (dashboards, the job scheduler), not end
// users.
type AuthService struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
	jwtSecret   []byte
}

func NewAuthService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client) *AuthService {
	return &AuthService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
		jwtSecret:   []byte(cfg.Auth.JWTSecret),
	}
}

func (s *AuthService) IssueToken(serviceName, scope string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.Auth.TokenTTL)
	claims := &models.ServiceClaims{
		ServiceName: serviceName,
		Scope:       scope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "quotescan",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	// Session record enables revocation; token issuance survives a Redis
	// outage.
	sessionKey := fmt.Sprintf("service_session:%s", serviceName)
	if err := s.redisClient.Set(context.Background(), sessionKey, tokenString, s.config.Auth.TokenTTL).Err(); err != nil {
		s.logger.WithError(err).Warn("Failed to store service session in Redis")
	}

	return tokenString, expiresAt, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*models.ServiceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.ServiceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.ServiceClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sessionKey := fmt.Sprintf("service_session:%s", claims.ServiceName)
	exists, err := s.redisClient.Exists(context.Background(), sessionKey).Result()
	if err != nil {
		s.logger.WithError(err).Warn("Failed to check service session in Redis")
	} else if exists == 0 {
		return nil, fmt.Errorf("session not found or revoked")
	}

	return claims, nil
}

func (s *AuthService) RevokeToken(serviceName string) error {
	sessionKey := fmt.Sprintf("service_session:%s", serviceName)
	if err := s.redisClient.Del(context.Background(), sessionKey).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// ValidateAPIKey resolves a configured service key to its scope. Entries in
// auth.service_keys take the form "<key>:<scope>".
func (s *AuthService) ValidateAPIKey(apiKey string) (string, error) {
	for _, entry := range s.config.Auth.ServiceKeys {
		key, scope, found := strings.Cut(entry, ":")
		if !found {
			continue
		}
		if key == apiKey {
			return scope, nil
		}
	}
	return "", fmt.Errorf("invalid API key")
}
