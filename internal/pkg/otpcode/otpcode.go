// Package otpcode produces uniformly random numeric one-time codes.
package otpcode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// MaxLength bounds a single code.
const MaxLength = 32

// ErrInvalidLength is returned for lengths outside 1..MaxLength.
var ErrInvalidLength = errors.New("otpcode: invalid length")

// Bytes at or above this value are rejected so byte%10 stays uniform.
const acceptBelow = 250

// Generator draws digits from a cryptographically secure source.
type Generator struct {
	src io.Reader
}

// New returns a Generator reading from crypto/rand.
func New() *Generator {
	return &Generator{src: rand.Reader}
}

// NewWithReader returns a Generator reading from src.
func NewWithReader(src io.Reader) *Generator {
	return &Generator{src: src}
}

// Generate returns exactly length digits, leading zeros included. A failing
// source is reported as an error and never retried with a weaker one.
func (g *Generator) Generate(length int) (string, error) {
	if length < 1 || length > MaxLength {
		return "", ErrInvalidLength
	}

	code := make([]byte, 0, length)
	buf := make([]byte, length+length/2+1)
	for len(code) < length {
		if _, err := io.ReadFull(g.src, buf); err != nil {
			return "", fmt.Errorf("otpcode: read random source: %w", err)
		}
		for _, b := range buf {
			if b >= acceptBelow {
				continue
			}
			code = append(code, '0'+b%10)
			if len(code) == length {
				break
			}
		}
	}

	return string(code), nil
}
