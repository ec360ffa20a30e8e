// Package jwt signs and verifies the short-lived verification tokens handed
// out after a one-time code is accepted.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSigningMethod = errors.New("invalid JWT signing method")

	// ErrSigningKeyTooShort is returned when the HS512 key is under 64 bytes.
	ErrSigningKeyTooShort = errors.New("HS512 signing key must be at least 64 bytes (512 bits)")

	ErrTokenExpired = errors.New("JWT token has expired")
	ErrInvalidToken = errors.New("invalid token")
)

// JWT issues and checks verification tokens.
type JWT interface {
	Generate(p Payload) (string, error)
	Verify(tokenStr string) (Claims, error)
}

type clocker interface {
	Now() time.Time
}

type generator interface {
	Generate() string
}

// Config defines the inputs for building a JWT implementation.
type Config struct {
	Secret    []byte
	Issuer    string
	Audiences []string
	TTL       time.Duration
	Clock     clocker
	UUID      generator
}

// Payload is what a verified code proves.
type Payload struct {
	SubjectID string
	Purpose   string
	// Reference is the opaque handle of the consumed code.
	Reference string
}

// Claims is the decoded form of a verification token. Subject carries the
// subject id.
type Claims struct {
	jwt.RegisteredClaims
	Purpose   string `json:"purpose"`
	Reference string `json:"ref"`
}
