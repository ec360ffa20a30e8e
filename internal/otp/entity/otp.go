package entity

import (
	"strconv"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultCodeLength  = 6

	// Codes outside this range are refused by the validation endpoint.
	MinCodeLength = 4
	MaxCodeLength = 10
)

// CodeGenerator produces numeric codes of a given length.
type CodeGenerator interface {
	Generate(length int) (string, error)
}

// CodeHasher digests codes for storage and checks input against a digest in
// constant time.
type CodeHasher interface {
	Hash(str string) ([]byte, error)
	Verify(hashed, str string) bool
}

// OTP is one issued code and its verification state.
//
// Transitions only go through the methods below: AttemptCount never
// decreases and Used never flips back, except through Regenerate. Expiry is
// evaluated against the now passed in, never stored. The plaintext code is
// never kept: CodeHash is the digest of the id and code.
type OTP struct {
	ID           int64
	SubjectID    string
	Purpose      Purpose
	CodeHash     string
	Used         bool
	AttemptCount int
	MaxAttempts  int
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewParams describes a code to issue.
type NewParams struct {
	ID          int64
	SubjectID   string
	Purpose     Purpose
	CodeLength  int
	MaxAttempts int
	TTL         time.Duration
	Now         time.Time
}

// New issues a fresh code and returns it alongside the record, which only
// holds its digest. Zero CodeLength and MaxAttempts take the defaults.
func New(p NewParams, gen CodeGenerator, hasher CodeHasher) (*OTP, string, error) {
	if p.TTL <= 0 {
		return nil, "", ErrInvalidTTL
	}
	if p.CodeLength <= 0 {
		p.CodeLength = DefaultCodeLength
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}

	code, err := gen.Generate(p.CodeLength)
	if err != nil {
		return nil, "", err
	}
	digest, err := hasher.Hash(digestInput(p.ID, code))
	if err != nil {
		return nil, "", err
	}

	return &OTP{
		ID:          p.ID,
		SubjectID:   p.SubjectID,
		Purpose:     p.Purpose,
		CodeHash:    string(digest),
		MaxAttempts: p.MaxAttempts,
		ExpiresAt:   p.Now.Add(p.TTL),
		CreatedAt:   p.Now,
		UpdatedAt:   p.Now,
	}, code, nil
}

// digestInput binds a code to its record, so a digest copied onto another
// record never matches.
func digestInput(id int64, code string) string {
	return strconv.FormatInt(id, 10) + ":" + code
}

// IsExpired is true once now is past ExpiresAt.
func (o *OTP) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

func (o *OTP) IsMaxAttemptsReached() bool {
	return o.AttemptCount >= o.MaxAttempts
}

// IsValid reports whether the code can still be verified successfully.
func (o *OTP) IsValid(now time.Time) bool {
	return !o.Used && !o.IsExpired(now) && !o.IsMaxAttemptsReached()
}

// IsLive reports an unused, unexpired code, locked or not.
func (o *OTP) IsLive(now time.Time) bool {
	return !o.Used && !o.IsExpired(now)
}

func (o *OTP) RemainingAttempts() int {
	return max(0, o.MaxAttempts-o.AttemptCount)
}

// TimeUntilExpiry is never negative.
func (o *OTP) TimeUntilExpiry(now time.Time) time.Duration {
	return max(0, o.ExpiresAt.Sub(now))
}

// SecondsUntilExpiry truncates toward zero.
func (o *OTP) SecondsUntilExpiry(now time.Time) int64 {
	return int64(o.TimeUntilExpiry(now) / time.Second)
}

// IncrementAttempt counts one verification attempt regardless of state.
func (o *OTP) IncrementAttempt(now time.Time) {
	o.AttemptCount++
	o.UpdatedAt = now
}

// MarkAsUsed consumes the code.
func (o *OTP) MarkAsUsed(now time.Time) error {
	if o.Used {
		return ErrAlreadyUsed
	}
	o.Used = true
	o.UpdatedAt = now
	return nil
}

// Verify counts the attempt first, then rejects expired, used and locked
// codes in that order before comparing. A match consumes the code. The
// attempt is counted on every path, so callers must persist the record
// whatever the outcome.
func (o *OTP) Verify(input string, now time.Time, hasher CodeHasher) (bool, error) {
	o.IncrementAttempt(now)

	switch {
	case o.IsExpired(now):
		return false, ErrExpired
	case o.Used:
		return false, ErrAlreadyUsed
	case o.IsMaxAttemptsReached():
		return false, ErrLockedOut
	}

	if !hasher.Verify(o.CodeHash, digestInput(o.ID, input)) {
		return false, nil
	}

	o.Used = true
	return true, nil
}

// Regenerate replaces the code and resets usage and attempts, returning the
// new code. Zero length takes the default. On failure the record is left
// untouched.
func (o *OTP) Regenerate(ttl time.Duration, length int, now time.Time, gen CodeGenerator, hasher CodeHasher) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}
	if length <= 0 {
		length = DefaultCodeLength
	}

	code, err := gen.Generate(length)
	if err != nil {
		return "", err
	}
	digest, err := hasher.Hash(digestInput(o.ID, code))
	if err != nil {
		return "", err
	}

	o.CodeHash = string(digest)
	o.Used = false
	o.AttemptCount = 0
	o.ExpiresAt = now.Add(ttl)
	o.UpdatedAt = now
	return code, nil
}
