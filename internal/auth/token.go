// Package auth issues and verifies device credentials: bcrypt hashes for
// device secrets and HS256 bearer tokens scoped to one group.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the "iss" claim of every token this server signs.
const Issuer = "instalist-server"

// ErrInvalidToken reports a token that failed signature, issuer, expiry or
// claim checks.
var ErrInvalidToken = errors.New("invalid token")

// ErrTokenExpired reports a well-formed token past its expiry.
var ErrTokenExpired = errors.New("token expired")

// Principal is the identity carried by a verified token.
type Principal struct {
	DeviceID uint64
	GroupID  uint64
}

// claims stores the device id in "sub" and the group id in "gid".
type claims struct {
	jwt.RegisteredClaims
	GroupID uint64 `json:"gid"`
}

// TokenService signs and verifies device tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService returns a TokenService. The secret must be at least 16
// characters and ttl must be positive.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: token secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for the device and returns it with its expiry.
func (s *TokenService) Issue(p Principal) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(p.DeviceID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    Issuer,
		},
		GroupID: p.GroupID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses tokenStr and returns its principal.
func (s *TokenService) Verify(tokenStr string) (Principal, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Principal{}, ErrInvalidToken
	}
	deviceID, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || deviceID == 0 || c.GroupID == 0 {
		return Principal{}, fmt.Errorf("%w: missing subject or group", ErrInvalidToken)
	}
	return Principal{DeviceID: deviceID, GroupID: c.GroupID}, nil
}
