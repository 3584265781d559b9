// Package auth holds the session credential and reads the identity carried
// in bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	subjectClaim  = "sub"
	usernameClaim = "username"
	expClaim      = "exp"
)

var (
	ErrNoToken      = errors.New("no token")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// TokenStore is a process-local credential store. Nothing is persisted.
type TokenStore struct {
	mu    sync.RWMutex
	token string
}

func NewTokenStore(token string) *TokenStore {
	return &TokenStore{token: token}
}

func (s *TokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

func (s *TokenStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
}

func (s *TokenStore) Clear() {
	s.Set("")
}

type Claims struct {
	UserId    string
	Username  string
	ExpiresAt time.Time
}

func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// ParseClaims reads the claims of token without verifying its signature.
// Verification is the server's job; the client only needs its identity.
func ParseClaims(token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrNoToken
	}

	mc := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return claimsFromMap(mc)
}

func claimsFromMap(mc jwt.MapClaims) (Claims, error) {
	var c Claims

	switch sub := mc[subjectClaim].(type) {
	case string:
		c.UserId = sub
	case float64:
		c.UserId = fmt.Sprintf("%.0f", sub)
	}
	if c.UserId == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	c.Username, _ = mc[usernameClaim].(string)
	if exp, ok := mc[expClaim].(float64); ok {
		c.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}

	return c, nil
}

// Sign mints an HS256 token for userId. It backs the local development
// server.
func Sign(secret []byte, userId, username string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		subjectClaim:  userId,
		usernameClaim: username,
		expClaim:      time.Now().Add(ttl).Unix(),
	})

	return token.SignedString(secret)
}

// Verify checks the signature and expiry of token.
func Verify(secret []byte, token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrNoToken
	}

	mc := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, mc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorExpired != 0 {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return claimsFromMap(mc)
}
