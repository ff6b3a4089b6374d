// Package auth issues and validates the JWT pair used by players and GMs.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Values of the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const (
	AccessTokenExpiry  = 15 * time.Minute
	RefreshTokenExpiry = 7 * 24 * time.Hour
)

// DefaultLeeway absorbs clock skew between the API and player devices.
const DefaultLeeway = 30 * time.Second

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrEmptyUserID  = errors.New("userID cannot be empty")
)

// Claims carries the authenticated user ID in the standard subject claim
// plus a typ claim distinguishing access from refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// JWTService signs tokens with the current secret and validates against
// both the current and, during a rotation window, the previous secret.
// Long-lived game sessions keep refresh tokens around for days, so a
// secret swap must not log every table out at once.
type JWTService struct {
	secrets [][]byte // index 0 signs; later entries validate only
	leeway  time.Duration
}

func NewJWTService(secret string) *JWTService {
	return &JWTService{secrets: [][]byte{[]byte(secret)}, leeway: DefaultLeeway}
}

func NewJWTServiceWithLeeway(secret string, leeway time.Duration) *JWTService {
	return &JWTService{secrets: [][]byte{[]byte(secret)}, leeway: leeway}
}

// NewJWTServiceWithRotation accepts the previous signing secret alongside
// the current one. Pass an empty previous secret when no rotation is in
// progress.
func NewJWTServiceWithRotation(currentSecret, previousSecret string) *JWTService {
	svc := NewJWTService(currentSecret)
	if previousSecret != "" {
		svc.secrets = append(svc.secrets, []byte(previousSecret))
	}
	return svc
}

// GenerateAccessToken issues a short-lived token for API requests.
func (s *JWTService) GenerateAccessToken(userID string) (string, error) {
	return s.sign(userID, TokenTypeAccess, AccessTokenExpiry)
}

// GenerateRefreshToken issues a long-lived token used only to obtain new
// access tokens.
func (s *JWTService) GenerateRefreshToken(userID string) (string, error) {
	return s.sign(userID, TokenTypeRefresh, RefreshTokenExpiry)
}

func (s *JWTService) sign(userID, typ string, expiry time.Duration) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
		Type: typ,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secrets[0])
}

// ValidateToken parses the token against each configured secret, newest
// first, and returns its claims. Only HS256 signatures are accepted.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	var lastErr error
	for _, secret := range s.secrets {
		token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, ErrInvalidToken
			}
			return secret, nil
		}, jwt.WithLeeway(s.leeway))
		if err != nil {
			lastErr = err
			continue
		}
		if claims, ok := token.Claims.(*Claims); ok && token.Valid {
			return claims, nil
		}
		lastErr = ErrInvalidToken
	}

	if errors.Is(lastErr, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	return nil, ErrInvalidToken
}
