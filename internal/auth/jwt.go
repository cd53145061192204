package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/worldstream/server/internal/config"
)

const issuer = "worldstream-server"

// Token roles.
const (
	// RoleStream tokens open the WebSocket of exactly one session.
	RoleStream = "stream"
	RoleAdmin  = "admin"
)

// Claims represents JWT claims structure
type Claims struct {
	jwt.RegisteredClaims

	SessionID string `json:"session_id,omitempty"`
	Role      string `json:"role"`
}

// JWTService issues and checks session and admin tokens.
type JWTService struct {
	secret []byte
	expiry time.Duration
}

// NewJWTService creates a new JWT service with configuration
func NewJWTService(cfg *config.Config) *JWTService {
	expiry := cfg.Auth.JWTExpiration
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &JWTService{
		secret: []byte(cfg.Auth.JWTSecret),
		expiry: expiry,
	}
}

// GenerateStreamToken returns a token bound to one streaming session.
func (s *JWTService) GenerateStreamToken(sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("session id is required")
	}
	return s.sign(sessionID, RoleStream)
}

// GenerateAdminToken returns a token for the admin endpoints.
func (s *JWTService) GenerateAdminToken() (string, error) {
	return s.sign("admin", RoleAdmin)
}

func (s *JWTService) sign(subject, role string) (string, error) {
	now := time.Now()

	tokenID, err := generateTokenID()
	if err != nil {
		return "", fmt.Errorf("failed to generate token ID: %w", err)
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        tokenID,
		},
		Role: role,
	}
	if role == RoleStream {
		claims.SessionID = subject
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses a token and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	switch claims.Role {
	case RoleAdmin:
	case RoleStream:
		if claims.SessionID == "" {
			return nil, errors.New("stream token without session")
		}
	default:
		return nil, fmt.Errorf("unknown token role %q", claims.Role)
	}
	return claims, nil
}

// GetTokenExpiration returns the lifetime of issued tokens.
func (s *JWTService) GetTokenExpiration() time.Duration {
	return s.expiry
}

func generateTokenID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
