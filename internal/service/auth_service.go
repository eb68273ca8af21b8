package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Auth errors.
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrWrongTokenType = errors.New("token is not a candidate token")
)

// TokenType distinguishes candidate tokens from other tokens signed with the
// same secret by the identity service.
type TokenType string

const TokenTypeCandidate TokenType = "candidate"

// Claims extends JWT standard claims with app-specific fields. Subject is
// the candidate id.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	// Invitation optionally pins the token to one invitation token.
	Invitation string `json:"invitation,omitempty"`
}

// AuthService verifies candidate JWTs issued by the identity service.
type AuthService struct {
	secret []byte
}

// NewAuthService creates a new AuthService.
func NewAuthService(secret string) *AuthService {
	return &AuthService{secret: []byte(secret)}
}

// IssueCandidateToken signs a candidate token. The identity service owns
// issuance in production; this is used by tooling and tests.
func (s *AuthService) IssueCandidateToken(candidateID, invitation string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   candidateID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType:  TokenTypeCandidate,
		Invitation: invitation,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a candidate JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != TokenTypeCandidate {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// Allows reports whether the claims may act on the given invitation token.
func (c *Claims) Allows(invitationToken string) bool {
	return c.Invitation == "" || c.Invitation == invitationToken
}
