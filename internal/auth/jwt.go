package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/gas-agency/internal/clock"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// TokenType distinguishes access tokens from refresh tokens so one cannot
// stand in for the other.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims represents JWT claims. RegisteredClaims.ID carries the session id.
type Claims struct {
	AccountID string    `json:"account_id"`
	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// SessionID returns the id of the session the token was issued for.
func (c *Claims) SessionID() string {
	return c.ID
}

// JWTService handles JWT token operations
type JWTService struct {
	secretKey          []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	clock              clock.Clock
}

type JWTOption func(*JWTService)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(c clock.Clock) JWTOption {
	return func(s *JWTService) { s.clock = c }
}

// NewJWTService creates a new JWT service
func NewJWTService(secretKey string, accessExpiry, refreshExpiry time.Duration, opts ...JWTOption) *JWTService {
	s := &JWTService{
		secretKey:          []byte(secretKey),
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
		clock:              clock.NewSystem(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateAccessToken creates a new access token bound to a session
func (s *JWTService) GenerateAccessToken(sessionID, accountID, role string) (string, time.Time, error) {
	return s.sign(sessionID, accountID, role, TokenTypeAccess, s.accessTokenExpiry)
}

// GenerateRefreshToken creates a new refresh token bound to a session
func (s *JWTService) GenerateRefreshToken(sessionID, accountID string) (string, time.Time, error) {
	return s.sign(sessionID, accountID, "", TokenTypeRefresh, s.refreshTokenExpiry)
}

func (s *JWTService) sign(sessionID, accountID, role string, typ TokenType, ttl time.Duration) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		AccountID: accountID,
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   accountID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ValidateAccessToken validates an access token and returns claims
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, TokenTypeAccess)
}

// ValidateRefreshToken validates a refresh token and returns claims
func (s *JWTService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, TokenTypeRefresh)
}

func (s *JWTService) validate(tokenString string, want TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.clock.Now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != want || claims.ID == "" || claims.AccountID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetAccessTokenExpiry returns the access token expiry duration
func (s *JWTService) GetAccessTokenExpiry() time.Duration {
	return s.accessTokenExpiry
}

// GetRefreshTokenExpiry returns the refresh token expiry duration
func (s *JWTService) GetRefreshTokenExpiry() time.Duration {
	return s.refreshTokenExpiry
}
