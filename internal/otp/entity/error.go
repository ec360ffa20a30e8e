package entity

import "errors"

var (
	ErrExpired     = errors.New("otp: code expired")
	ErrAlreadyUsed = errors.New("otp: code already used")
	ErrLockedOut   = errors.New("otp: too many attempts")

	// ErrInvalidTTL is returned when a code would not expire strictly in the future.
	ErrInvalidTTL = errors.New("otp: ttl must be positive")
)
