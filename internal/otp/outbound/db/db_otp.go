package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goerror"
)

func (s *DB) Save(ctx context.Context, otp entity.OTP) (err error) {
	ctx, span := s.startSpan(ctx, "Save")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, insertOTP,
		otp.ID,
		otp.SubjectID,
		int16(otp.Purpose),
		otp.CodeHash,
		otp.Used,
		otp.AttemptCount,
		otp.MaxAttempts,
		otp.ExpiresAt,
		otp.CreatedAt,
		otp.UpdatedAt,
	)
	return s.mapError(err)
}

func (s *DB) GetLatest(ctx context.Context, subjectID string, purpose entity.Purpose) (_ *entity.OTP, err error) {
	ctx, span := s.startSpan(ctx, "GetLatest")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx, selectLatestOTP, subjectID, int16(purpose))
	if err != nil {
		return nil, s.mapError(err)
	}

	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[otpRow])
	if err != nil {
		return nil, s.mapError(err)
	}

	otp := row.toEntity()
	return &otp, nil
}

// UpdateAttemptAndUsed writes the new attempt count and used flag only if
// the row still has the expected ones. A lost race is goerror.ErrConflict.
func (s *DB) UpdateAttemptAndUsed(ctx context.Context, in entity.AttemptUpdate) (_ *entity.OTP, err error) {
	ctx, span := s.startSpan(ctx, "UpdateAttemptAndUsed")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx, updateOTPAttempt,
		in.ID,
		in.AttemptCount,
		in.Used,
		in.UpdatedAt,
		in.ExpectedAttemptCount,
		in.ExpectedUsed,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[otpRow])
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if qErr := s.conn.QueryRow(ctx, existsOTP, in.ID).Scan(&exists); qErr != nil {
			return nil, s.mapError(qErr)
		}
		return nil, lo.Ternary(exists, goerror.ErrConflict, goerror.ErrNotFound)
	}
	if err != nil {
		return nil, s.mapError(err)
	}

	otp := row.toEntity()
	return &otp, nil
}

// DeleteExpired removes one batch inside a transaction. Rows locked by a
// concurrent sweep are skipped. beforeCommit failing rolls the batch back.
func (s *DB) DeleteExpired(
	ctx context.Context,
	olderThan time.Time,
	limit int,
	beforeCommit func(context.Context, []entity.OTP) error,
) (_ int, err error) {
	ctx, span := s.startSpan(ctx, "DeleteExpired")
	defer func() { s.endSpan(span, err) }()

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rollback", "error", rErr)
		}
	}()

	rows, err := tx.Query(ctx, deleteExpiredOTP, olderThan, limit)
	if err != nil {
		return 0, s.mapError(err)
	}
	deleted, err := pgx.CollectRows(rows, pgx.RowToStructByName[otpRow])
	if err != nil {
		return 0, s.mapError(err)
	}
	if len(deleted) == 0 {
		return 0, nil
	}

	if beforeCommit != nil {
		if err := beforeCommit(ctx, lo.Map(deleted, func(r otpRow, _ int) entity.OTP { return r.toEntity() })); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, s.mapError(err)
	}

	span.SetAttributes(attribute.Int("otp.deleted", len(deleted)))
	return len(deleted), nil
}
