// Package auth handles account credentials and session tokens.
package auth

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrAuthDisabled       = errors.New("auth disabled")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid handle or password")
)

// Config configures authentication helpers.
type Config struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

// DefaultConfig returns sensible session defaults.
func DefaultConfig() Config {
	return Config{TokenExpiry: 7 * 24 * time.Hour}
}

// Service issues and validates session tokens.
type Service struct {
	jwt *JWTService
}

// NewService constructs an auth service from static configuration.
func NewService(cfg Config) *Service {
	service := &Service{}
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		service.jwt = NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)
	}
	return service
}

// Enabled reports whether auth checks should run.
func (s *Service) Enabled() bool {
	return s != nil && s.jwt != nil
}

// GenerateToken issues a signed session token for the given identity.
func (s *Service) GenerateToken(identity *Identity) (string, error) {
	if s == nil || s.jwt == nil {
		return "", ErrAuthDisabled
	}
	return s.jwt.Generate(identity)
}

// ValidateToken validates a session token and returns the identity in it.
func (s *Service) ValidateToken(token string) (*Identity, error) {
	if s == nil || s.jwt == nil {
		return nil, ErrAuthDisabled
	}
	return s.jwt.Validate(token)
}
