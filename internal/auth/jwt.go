package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID    uint   `json:"user_id"`
	Username  string `json:"username"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies the access/refresh token pair. Refresh
// tokens get a uuid JTI so individual tokens can be blacklisted on logout.
type TokenIssuer struct {
	Key        []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (s TokenIssuer) IssueAccess(userID uint, username string) (string, error) {
	return s.issue(userID, username, TokenTypeAccess, s.AccessTTL)
}

func (s TokenIssuer) IssueRefresh(userID uint, username string) (string, error) {
	return s.issue(userID, username, TokenTypeRefresh, s.RefreshTTL)
}

func (s TokenIssuer) issue(userID uint, username, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		Username:  username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.Key)
}

// Parse verifies the signature and expiry and rejects tokens whose
// token_type claim does not match wantType. An access token presented
// where a refresh token is expected (or the reverse) is invalid.
func (s TokenIssuer) Parse(token, wantType string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.Key, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, ErrInvalidToken
	}
	if c.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	return c, nil
}
