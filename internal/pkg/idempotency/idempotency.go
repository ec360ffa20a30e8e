// Package idempotency guards side effects with Redis keys: Exec runs a
// handler at most once per key, Lock serializes work on a key.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrAlreadyInProgress = errors.New("operation already in progress")
	ErrAlreadyCompleted  = errors.New("operation already completed")
	ErrInvalidState      = errors.New("invalid state")

	// ErrLocked is returned by Lock when another holder owns the key.
	ErrLocked = errors.New("key is locked")
)

type State string

const (
	StateNone       State = "none"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

func (s State) String() string {
	return string(s)
}

// Unlock releases a lock taken with Lock.
type Unlock func(ctx context.Context) error

type Idempotency interface {
	Acquire(ctx context.Context, key string, lockDuration time.Duration) (State, error)
	Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error
	Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

// Deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type tokenGenerator interface {
	Generate() string
}

type StateTracker struct {
	client redis.UniversalClient
	tokens tokenGenerator
	prefix string
}

func New(client redis.UniversalClient, tokens tokenGenerator) *StateTracker {
	return &StateTracker{
		client: client,
		tokens: tokens,
		prefix: "idempotency:",
	}
}

const (
	defaultLockDuration = time.Minute
	defaultStateTTL     = 24 * time.Hour
)

type Option func(*execOptions)

type execOptions struct {
	lockDuration time.Duration
	stateTTL     time.Duration
}

// WithLockDuration bounds how long a crashed handler keeps the key in progress.
func WithLockDuration(d time.Duration) Option {
	return func(o *execOptions) { o.lockDuration = d }
}

// WithStateTTL sets how long a completed key suppresses repeats.
func WithStateTTL(d time.Duration) Option {
	return func(o *execOptions) { o.stateTTL = d }
}

// Acquire marks key in progress when it is free and reports its state otherwise.
func (s *StateTracker) Acquire(ctx context.Context, key string, lockDuration time.Duration) (State, error) {
	fk := s.prefix + key

	acquired, err := s.client.SetNX(ctx, fk, StateInProgress.String(), lockDuration).Result()
	if err != nil {
		return StateError, err
	}
	if acquired {
		return StateNone, nil
	}

	result, err := s.client.Get(ctx, fk).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		acquired, err = s.client.SetNX(ctx, fk, StateInProgress.String(), lockDuration).Result()
		if err != nil {
			return StateError, err
		}
		if acquired {
			return StateNone, nil
		}
		return StateError, ErrInvalidState
	}
	if err != nil {
		return StateError, err
	}

	switch State(result) {
	case StateInProgress:
		return StateInProgress, nil
	case StateCompleted:
		return StateCompleted, nil
	default:
		return StateError, ErrInvalidState
	}
}

// Exec runs fn once per key. A failed fn releases the key so a redelivery
// can try again.
func (s *StateTracker) Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error {
	o := &execOptions{lockDuration: defaultLockDuration, stateTTL: defaultStateTTL}
	for _, opt := range opts {
		opt(o)
	}
	if o.lockDuration <= 0 {
		o.lockDuration = defaultLockDuration
	}
	if o.stateTTL <= 0 {
		o.stateTTL = defaultStateTTL
	}

	state, err := s.Acquire(ctx, key, o.lockDuration)
	if err != nil {
		return err
	}

	switch state {
	case StateInProgress:
		return ErrAlreadyInProgress
	case StateCompleted:
		return ErrAlreadyCompleted
	}

	if err := fn(ctx); err != nil {
		if delErr := s.client.Del(context.WithoutCancel(ctx), s.prefix+key).Err(); delErr != nil {
			return errors.Join(err, delErr)
		}
		return err
	}

	return s.client.Set(context.WithoutCancel(ctx), s.prefix+key, StateCompleted.String(), o.stateTTL).Err()
}

// Lock takes an exclusive lease on key for at most ttl. The returned Unlock
// is a no-op once the lease has expired and been taken by someone else.
func (s *StateTracker) Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	fk := s.prefix + "lock:" + key
	token := s.tokens.Generate()

	ok, err := s.client.SetNX(ctx, fk, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		return unlockScript.Run(ctx, s.client, []string{fk}, token).Err()
	}, nil
}
