// Package auth issues and verifies the API's credentials.
//
// TWO TOKEN KINDS:
// An access token is short-lived (15 minutes by default) and is sent as
// "Authorization: Bearer <token>" on every API call. A refresh token lives
// for days and is only accepted by POST /auth/refresh, which mints a new
// access token.
//
// Each kind is signed with its own HMAC secret. A leaked access token can
// therefore never be replayed as a refresh token, and rotating the refresh
// secret ends long-lived sessions without touching access tokens.
//
// Both carry the same claims:
//
//	{"sub": "<user id>", "email": "<user email>", "iss": "recipebox", "iat": ..., "exp": ...}
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "recipebox"

// minSecretLen matches what the config layer enforces for JWT_*_SECRET.
const minSecretLen = 32

// ErrInvalidToken is returned for every verification failure: expired,
// bad signature, wrong kind or malformed. Callers treat them all alike.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims identify the caller a token was issued to.
type Claims struct {
	Subject string // user id
	Email   string
}

// TokenConfig holds the signing material and lifetimes of both token kinds.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenService handles JWT creation and validation for both token kinds.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenService validates cfg and returns a TokenService.
// Secrets must be at least 32 characters and must differ from each other.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.AccessSecret) < minSecretLen || len(cfg.RefreshSecret) < minSecretLen {
		return nil, fmt.Errorf("auth: JWT secrets must be at least %d characters", minSecretLen)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	return &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}, nil
}

// tokenClaims is the JWT payload. "sub" carries the user id.
type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IssueAccess signs a short-lived access token.
func (s *TokenService) IssueAccess(c Claims) (string, error) {
	return sign(s.accessSecret, c, s.accessTTL)
}

// IssueRefresh signs a long-lived refresh token.
func (s *TokenService) IssueRefresh(c Claims) (string, error) {
	return sign(s.refreshSecret, c, s.refreshTTL)
}

// VerifyAccess checks an access token and returns its claims.
func (s *TokenService) VerifyAccess(token string) (Claims, error) {
	return verify(s.accessSecret, token)
}

// VerifyRefresh checks a refresh token and returns its claims.
func (s *TokenService) VerifyRefresh(token string) (Claims, error) {
	return verify(s.refreshSecret, token)
}

// AccessTTL is exposed so responses can tell clients when to refresh.
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

func sign(secret []byte, c Claims, ttl time.Duration) (string, error) {
	if c.Subject == "" {
		return "", errors.New("auth: token subject is required")
	}
	now := time.Now()

	tc := tokenClaims{
		Email: c.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// verify parses and checks a token signed with secret.
//
// Only HS256 is accepted, which rules out "alg: none" and key confusion
// tricks. Issuer and expiry are mandatory.
func verify(secret []byte, tokenStr string) (Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&tokenClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	tc, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || tc.Subject == "" {
		return Claims{}, ErrInvalidToken
	}

	return Claims{Subject: tc.Subject, Email: tc.Email}, nil
}
