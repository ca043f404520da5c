// Package auth issues and verifies identity tokens, hashes passwords, and
// turns a verified token into a request-scoped Principal.
//
// TOKEN FORMAT:
// Tokens are compact JWS strings (JWT, HS256):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:  {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"alice","userId":7,"roles":["ROLE_USER"],"iss":"webchat","iat":...,"exp":...}
//
// Verification needs only the shared secret, so every service can check a
// token locally without calling anyone.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failure kinds. Verify wraps exactly one of these.
var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
)

const (
	// DefaultTTL is the lifetime of an issued token.
	DefaultTTL = time.Hour
	// DefaultIssuer is written to and required in the "iss" claim.
	DefaultIssuer = "webchat"

	minSecretLen = 16
)

// Claims is the decoded, verified content of a token. It is a value type;
// Roles returns a copy so callers cannot mutate it.
type Claims struct {
	Subject   string
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
	roles     []string
}

// Roles returns the ordered role list carried by the token.
func (c Claims) Roles() []string {
	return slices.Clone(c.roles)
}

// tokenClaims is the JWT payload.
type tokenClaims struct {
	UserID int64    `json:"userId"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenService is the token codec. It is safe for concurrent use: all fields
// are read-only after construction.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTTL sets the lifetime of issued tokens.
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) { s.ttl = ttl }
}

// WithIssuer sets the "iss" claim written and required by the service.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) { s.issuer = issuer }
}

// WithClock replaces time.Now. Used by tests to mint tokens in the past.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a codec bound to secret.
// The secret should be at least 32 random bytes in production.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: token secret must be at least %d characters", minSecretLen)
	}
	s := &TokenService{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl <= 0 {
		return nil, fmt.Errorf("auth: token TTL must be positive, got %s", s.ttl)
	}
	return s, nil
}

// TTL reports the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a new token for subject.
func (s *TokenService) Issue(subject string, userID int64, roles []string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("auth: token subject must not be empty")
	}

	now := s.now()
	c := tokenClaims{
		UserID: userID,
		Roles:  slices.Clone(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	if c.Roles == nil {
		c.Roles = []string{}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Verify decodes tokenStr and checks signature, expiry, issuer and subject.
//
// Expiry is checked on the unverified payload before the signature, so an
// expired token reports ErrTokenExpired whether or not it was tampered with.
// All segments are decoded strictly: base64url with non-zero padding bits is
// rejected, so no two distinct signature strings decode to the same bytes.
func (s *TokenService) Verify(tokenStr string) (Claims, error) {
	if tokenStr == "" {
		return Claims{}, fmt.Errorf("auth: empty token: %w", ErrTokenMalformed)
	}

	var unverified tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &unverified); err != nil {
		return Claims{}, fmt.Errorf("auth: decoding token: %w", ErrTokenMalformed)
	}
	if unverified.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("auth: token has no expiry: %w", ErrTokenMalformed)
	}
	if !s.now().Before(unverified.ExpiresAt.Time) {
		return Claims{}, fmt.Errorf("auth: token expired at %s: %w",
			unverified.ExpiresAt.Time.UTC().Format(time.RFC3339), ErrTokenExpired)
	}

	sig := tokenStr[strings.LastIndexByte(tokenStr, '.')+1:]
	if _, err := base64.RawURLEncoding.Strict().DecodeString(sig); err != nil {
		return Claims{}, fmt.Errorf("auth: decoding signature: %w", ErrTokenSignatureInvalid)
	}

	var c tokenClaims
	_, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, classify(err)
	}
	if c.Subject == "" {
		return Claims{}, fmt.Errorf("auth: token has no subject: %w", ErrTokenMalformed)
	}

	out := Claims{
		Subject:   c.Subject,
		UserID:    c.UserID,
		ExpiresAt: c.ExpiresAt.Time,
		roles:     slices.Clone(c.Roles),
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	return out, nil
}

// ExtractSubject returns the username the token was issued to.
func (s *TokenService) ExtractSubject(tokenStr string) (string, error) {
	c, err := s.Verify(tokenStr)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// ExtractUserID returns the canonical user id carried by the token.
func (s *TokenService) ExtractUserID(tokenStr string) (int64, error) {
	c, err := s.Verify(tokenStr)
	if err != nil {
		return 0, err
	}
	return c.UserID, nil
}

// ExtractRoles returns the roles carried by the token.
func (s *TokenService) ExtractRoles(tokenStr string) ([]string, error) {
	c, err := s.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	return c.Roles(), nil
}

// classify folds jwt library errors into the three verification kinds.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("auth: %v: %w", err, ErrTokenExpired)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("auth: %v: %w", err, ErrTokenSignatureInvalid)
	default:
		return fmt.Errorf("auth: %v: %w", err, ErrTokenMalformed)
	}
}

// Kind names the verification failure in err, for diagnostics.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "TokenExpired"
	case errors.Is(err, ErrTokenSignatureInvalid):
		return "TokenSignatureInvalid"
	case errors.Is(err, ErrTokenMalformed):
		return "TokenMalformed"
	default:
		return "TokenInvalid"
	}
}
