package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/yieldcycle/internal/pkg/redistest"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/uid"
)

func TestStateTracker_Exec(t *testing.T) {
	s := New(redistest.New(t), uid.NewUUID())
	ctx := context.Background()
	calls := 0
	fn := func(context.Context) error { calls++; return nil }

	if err := s.Exec(ctx, "msg-1", fn); err != nil {
		t.Fatalf("first Exec() error = %v", err)
	}
	if err := s.Exec(ctx, "msg-1", fn); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("second Exec() error = %v, want ErrAlreadyCompleted", err)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times", calls)
	}
}

func TestStateTracker_Exec_FailureReleasesKey(t *testing.T) {
	s := New(redistest.New(t), uid.NewUUID())
	ctx := context.Background()
	boom := errors.New("smtp down")

	if err := s.Exec(ctx, "msg-2", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Exec() error = %v", err)
	}
	if err := s.Exec(ctx, "msg-2", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("retry after failure error = %v", err)
	}
}

func TestStateTracker_Lock(t *testing.T) {
	s := New(redistest.New(t), uid.NewUUID())
	ctx := context.Background()

	unlock, err := s.Lock(ctx, "otp:user-1:LOGIN", time.Minute)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if _, err := s.Lock(ctx, "otp:user-1:LOGIN", time.Minute); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Lock() error = %v, want ErrLocked", err)
	}
	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock error = %v", err)
	}
	unlock2, err := s.Lock(ctx, "otp:user-1:LOGIN", time.Minute)
	if err != nil {
		t.Fatalf("Lock() after unlock error = %v", err)
	}
	_ = unlock2(ctx)
}

func TestStateTracker_Unlock_DoesNotStealForeignLease(t *testing.T) {
	client := redistest.New(t)
	s := New(client, uid.NewUUID())
	ctx := context.Background()

	unlock, err := s.Lock(ctx, "k", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if _, err := s.Lock(ctx, "k", time.Minute); err != nil {
		t.Fatalf("Lock() after expiry error = %v", err)
	}
	_ = unlock(ctx)

	if _, err := s.Lock(ctx, "k", time.Minute); !errors.Is(err, ErrLocked) {
		t.Fatalf("stale unlock released the new lease: %v", err)
	}
}
