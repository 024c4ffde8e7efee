package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Service checks bearer tokens for the admin API.
type Service struct {
	rateLimiter *RateLimiter
	signingKey  []byte
}

/*
NewService creates a service that accepts HS256 tokens signed with secret.
An empty secret disables authentication; requests are then only rate
limited.
*/
func NewService(secret string, requestsPerMinute int64) *Service {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 600
	}

	return &Service{
		rateLimiter: NewRateLimiter(requestsPerMinute, time.Minute),
		signingKey:  []byte(secret),
	}
}

func (s *Service) Enabled() bool {
	return len(s.signingKey) > 0
}

func (s *Service) getSigningKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	return s.signingKey, nil
}

// Authenticate validates the value of an Authorization header.
func (s *Service) Authenticate(header string) error {
	if !s.rateLimiter.Allow() {
		return ErrRateLimited
	}

	if !s.Enabled() {
		return nil
	}

	if header == "" {
		return fmt.Errorf("missing authorization header")
	}

	tokenStr := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(
		tokenStr, s.getSigningKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}

	if !token.Valid {
		return fmt.Errorf("token expired")
	}

	return nil
}

// GenerateToken signs a token for subject that expires after ttl.
func (s *Service) GenerateToken(subject string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("no signing secret configured")
	}

	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})

	tokenStr, err := token.SignedString(s.signingKey)

	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenStr, nil
}
