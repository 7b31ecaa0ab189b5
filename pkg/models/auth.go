package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceClaims identifies a calling service on the ops API. Tokens are
// issued to the job orchestrator and internal dashboards, not end users.
type ServiceClaims struct {
	ServiceName string `json:"service_name"`
	Scope       string `json:"scope"` // match, feedback, admin
	jwt.RegisteredClaims
}

type AuthRequest struct {
	APIKey      string `json:"api_key" validate:"required"`
	ServiceName string `json:"service_name" validate:"required,min=1,max=100"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Scope     string    `json:"scope"`
}
