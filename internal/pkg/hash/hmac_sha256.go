package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// ErrKeyTooShort is returned for keys under 32 bytes.
var ErrKeyTooShort = errors.New("hash: hmac key must be at least 32 bytes")

// HMACSHA256 implements Hash with hex encoded HMAC-SHA256 digests.
type HMACSHA256 struct {
	secret []byte
}

func NewHMACSHA256(secret []byte) (*HMACSHA256, error) {
	if len(secret) < 32 {
		return nil, ErrKeyTooShort
	}
	return &HMACSHA256{secret: secret}, nil
}

// Hash returns the hex digest of str.
func (s *HMACSHA256) Hash(str string) ([]byte, error) {
	return s.gen(str), nil
}

// Verify reports whether str hashes to hashed.
func (s *HMACSHA256) Verify(hashed, str string) bool {
	return subtle.ConstantTimeCompare([]byte(hashed), s.gen(str)) == 1
}

func (s *HMACSHA256) gen(str string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(str))
	sum := h.Sum(nil)
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum)
	return out
}
