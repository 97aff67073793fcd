package services

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the fixed lifetime of every issued bearer token.
const TokenTTL = 60 * time.Minute

const userIDClaim = "user_id"

// TokenService issues and validates HS256 bearer tokens. It keeps no state
// besides the signing secret.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret), now: time.Now}
}

// WithClock replaces the time source used for issuing and validating.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Issue signs a copy of claims with an exp set to now + TokenTTL.
func (s *TokenService) Issue(claims jwt.MapClaims) (string, error) {
	payload := make(jwt.MapClaims, len(claims)+1)
	for k, v := range claims {
		payload[k] = v
	}
	payload["exp"] = s.now().Add(TokenTTL).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) IssueForUser(userID uint) (string, error) {
	return s.Issue(jwt.MapClaims{userIDClaim: userID})
}

// Validate verifies signature and expiry. A token is rejected at and after
// its exp instant.
func (s *TokenService) Validate(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// ExpiresAt returns the exp claim of already validated claims.
func ExpiresAt(claims jwt.MapClaims) (time.Time, error) {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, ErrInvalidToken
	}
	return exp.Time, nil
}

// UserIDFromClaims extracts the user identity claim.
func UserIDFromClaims(claims jwt.MapClaims) (uint, error) {
	raw, ok := claims[userIDClaim].(float64)
	if !ok || raw < 1 || raw != math.Trunc(raw) || raw > math.MaxUint32 {
		return 0, errors.New("missing or malformed user_id claim")
	}
	return uint(raw), nil
}
