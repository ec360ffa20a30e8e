package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goerror"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	if os.Getenv("OTP_INTEGRATION") != "1" {
		t.Skip("set OTP_INTEGRATION=1 to run postgres integration tests")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:17-alpine",
		tcpostgres.WithDatabase("yieldcycle"),
		tcpostgres.WithUsername("yieldcycle"),
		tcpostgres.WithPassword("yieldcycle"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	db := NewDB(pool, instrument.NewNoop())
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func record(id int64, subject string, createdAt time.Time) entity.OTP {
	return entity.OTP{
		ID:          id,
		SubjectID:   subject,
		Purpose:     entity.PurposeLogin,
		CodeHash:    "5f4dcc3b5aa765d61d8327deb882cf995f4dcc3b5aa765d61d8327deb882cf99",
		MaxAttempts: 3,
		ExpiresAt:   createdAt.Add(5 * time.Minute),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestDB_SaveAndGetLatest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.GetLatest(ctx, "user-1", entity.PurposeLogin); !errors.Is(err, goerror.ErrNotFound) {
		t.Fatalf("GetLatest() on empty table error = %v, want ErrNotFound", err)
	}

	for i, rec := range []entity.OTP{record(1, "user-1", t0), record(2, "user-1", t0.Add(time.Minute)), record(3, "user-2", t0)} {
		if err := db.Save(ctx, rec); err != nil {
			t.Fatalf("Save(%d) error = %v", i, err)
		}
	}
	if err := db.Save(ctx, record(1, "user-1", t0)); !errors.Is(err, goerror.ErrConflict) {
		t.Fatalf("duplicate Save() error = %v, want ErrConflict", err)
	}

	got, err := db.GetLatest(ctx, "user-1", entity.PurposeLogin)
	if err != nil {
		t.Fatalf("GetLatest() error = %v", err)
	}
	if got.ID != 2 || got.CodeHash != "5f4dcc3b5aa765d61d8327deb882cf995f4dcc3b5aa765d61d8327deb882cf99" || !got.ExpiresAt.Equal(t0.Add(6*time.Minute)) {
		t.Fatalf("GetLatest() = %+v", got)
	}
	if _, err := db.GetLatest(ctx, "user-1", entity.PurposeRegistration); !errors.Is(err, goerror.ErrNotFound) {
		t.Fatalf("GetLatest() other purpose error = %v", err)
	}
}

func TestDB_UpdateAttemptAndUsed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := db.Save(ctx, record(10, "user-1", t0)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	up := entity.AttemptUpdate{ID: 10, ExpectedAttemptCount: 0, AttemptCount: 1, Used: true, UpdatedAt: t0.Add(time.Second)}
	got, err := db.UpdateAttemptAndUsed(ctx, up)
	if err != nil {
		t.Fatalf("UpdateAttemptAndUsed() error = %v", err)
	}
	if got.AttemptCount != 1 || !got.Used {
		t.Fatalf("updated = %+v", got)
	}

	// the same guarded write again loses: the row moved on
	if _, err := db.UpdateAttemptAndUsed(ctx, up); !errors.Is(err, goerror.ErrConflict) {
		t.Fatalf("stale update error = %v, want ErrConflict", err)
	}

	up.ID = 999
	if _, err := db.UpdateAttemptAndUsed(ctx, up); !errors.Is(err, goerror.ErrNotFound) {
		t.Fatalf("missing row error = %v, want ErrNotFound", err)
	}
}

func TestDB_DeleteExpired(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for i := range int64(3) {
		if err := db.Save(ctx, record(100+i, "user-1", t0)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if err := db.Save(ctx, record(200, "user-2", t0.Add(time.Hour))); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	olderThan := t0.Add(30 * time.Minute)

	failed := errors.New("archive down")
	n, err := db.DeleteExpired(ctx, olderThan, 10, func(context.Context, []entity.OTP) error { return failed })
	if !errors.Is(err, failed) || n != 0 {
		t.Fatalf("DeleteExpired() with failing hook = %d, %v", n, err)
	}

	var seen []entity.OTP
	n, err = db.DeleteExpired(ctx, olderThan, 2, func(_ context.Context, recs []entity.OTP) error {
		seen = append(seen, recs...)
		return nil
	})
	if err != nil || n != 2 || len(seen) != 2 {
		t.Fatalf("DeleteExpired() = %d, %v, seen %d", n, err, len(seen))
	}

	n, err = db.DeleteExpired(ctx, olderThan, 2, nil)
	if err != nil || n != 1 {
		t.Fatalf("second DeleteExpired() = %d, %v", n, err)
	}

	if _, err := db.GetLatest(ctx, "user-2", entity.PurposeLogin); err != nil {
		t.Fatalf("unexpired record swept: %v", err)
	}
}
