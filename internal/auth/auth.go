// Package auth hashes passwords and issues and verifies the HS256 access
// tokens that authenticate API callers. Tokens carry the user's email as
// the subject and the role as a custom claim; the server still reloads the
// user on every request so deactivation takes effect immediately.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTTL is the access token lifetime when none is configured.
const DefaultTTL = 30 * time.Minute

// minSecretLen is the shortest signing key NewIssuer accepts.
const minSecretLen = 16

var (
	// ErrInvalidToken means the token is malformed, expired or signed with
	// another key.
	ErrInvalidToken = errors.New("invalid token")
	// ErrBadCredentials means the password does not match the stored hash.
	ErrBadCredentials = errors.New("incorrect email or password")
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(b), nil
}

// CheckPassword compares password with a bcrypt hash. It returns
// ErrBadCredentials on mismatch.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// Claims is the token payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies access tokens with one HMAC key.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer for the given key. ttl <= 0 selects DefaultTTL.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: JWT_SECRET must be at least %d characters", minSecretLen)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue returns a signed token for the given subject and role.
func (i *Issuer) Issue(email, role string) (string, error) {
	now := i.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return tok, nil
}

// Verify parses and validates a token, returning its claims. Any failure is
// reported as ErrInvalidToken.
func (i *Issuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: %v: %w", err, ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject: %w", ErrInvalidToken)
	}
	return claims, nil
}
