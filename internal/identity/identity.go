// Package identity resolves callers from HS256 bearer tokens issued by the
// gateway. Tokens carry the numeric user_id and the username.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spigell/interviewpilot/internal/interview"
)

const DefaultTokenTTL = 24 * time.Hour

// Caller is an authenticated user.
type Caller struct {
	UserID   int64
	Username string
}

// Claims matches the gateway's access token payload.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Resolver verifies tokens. Issuer is checked only when set.
type Resolver struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewResolver(secret, issuer string) (*Resolver, error) {
	if secret == "" {
		return nil, errors.New("jwt secret key cannot be empty")
	}
	return &Resolver{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// ExtractToken extracts the token from an Authorization header value in
// "Bearer <token>" form.
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", fmt.Errorf("empty authorization header: %w", interview.ErrUnauthenticated)
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("invalid authorization header format: %w", interview.ErrUnauthenticated)
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", fmt.Errorf("empty token: %w", interview.ErrUnauthenticated)
	}

	return token, nil
}

// ResolveHeader resolves the caller from an Authorization header value.
func (r *Resolver) ResolveHeader(authHeader string) (Caller, error) {
	token, err := ExtractToken(authHeader)
	if err != nil {
		return Caller{}, err
	}
	return r.Resolve(token)
}

// Resolve verifies the token and returns its caller. Every failure matches
// interview.ErrUnauthenticated.
func (r *Resolver) Resolve(tokenString string) (Caller, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.now),
		jwt.WithExpirationRequired(),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		return Caller{}, fmt.Errorf("parse token: %w: %w", interview.ErrUnauthenticated, err)
	}
	if !token.Valid || claims.UserID <= 0 {
		return Caller{}, fmt.Errorf("invalid token: %w", interview.ErrUnauthenticated)
	}

	return Caller{UserID: claims.UserID, Username: claims.Username}, nil
}

// Issuer signs tokens in the gateway format. Used by the token command and tests.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret key cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

func (i *Issuer) Issue(userID int64, username string) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("user id must be positive: %w", interview.ErrInvalidInput)
	}

	now := i.now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
