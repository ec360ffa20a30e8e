package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goerror"
)

// ErrNotFound means no code was ever issued for the subject and purpose.
var ErrNotFound = errors.New("otp: no code issued for subject and purpose")

var errWriteContention = errors.New("otp: record kept changing during update")

// CooldownError refuses a resend while the live code still has time left.
type CooldownError struct {
	// Remaining is the validity left on the live code.
	Remaining time.Duration
	// RetryAfter is how long until a resend is accepted.
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otp: live code valid for another %s", e.Remaining.Truncate(time.Second))
}

func (e *CooldownError) RemainingSeconds() int64 {
	return int64(e.Remaining / time.Second)
}

// RemainingMinutes rounds down: 4m30s reports 4.
func (e *CooldownError) RemainingMinutes() int64 {
	return int64(e.Remaining / time.Minute)
}

// DeliveryError wraps a failed hand-off to the delivery channel. The stored
// code stays in place.
type DeliveryError struct {
	OTPID int64
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("otp: deliver code %d: %v", e.OTPID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// StorageError wraps a failed store call, timeouts included.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("otp: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageFailure(ctx context.Context, op string, err error, kv ...any) error {
	slog.ErrorContext(ctx, "failed to repo "+op, append(kv, "error", err)...)
	return goerror.NewServer(&StorageError{Op: op, Err: err})
}

func notFound() error {
	return goerror.NewBusiness("No verification code found, request a new one", goerror.CodeNotFound, goerror.WithCause(ErrNotFound))
}

// Reason is the internal classification of a rejected code. It is logged and
// traced but never shown to the caller.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonMismatch    Reason = "MISMATCH"
	ReasonExpired     Reason = "EXPIRED"
	ReasonAlreadyUsed Reason = "ALREADY_USED"
	ReasonLockedOut   Reason = "LOCKED_OUT"
)

func reasonOf(ok bool, err error) Reason {
	switch {
	case ok:
		return ReasonNone
	case errors.Is(err, entity.ErrExpired):
		return ReasonExpired
	case errors.Is(err, entity.ErrAlreadyUsed):
		return ReasonAlreadyUsed
	case errors.Is(err, entity.ErrLockedOut):
		return ReasonLockedOut
	default:
		return ReasonMismatch
	}
}
