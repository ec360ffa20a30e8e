package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
)

const defaultSweepBatch = 500

type SweepOutput struct {
	Deleted     int
	ArchiveKeys []string
}

// Sweep deletes codes that expired more than the retention ago, in batches.
// With an archive configured each batch is written out before it is
// removed; a failed archive leaves the batch for the next run.
func (s *Usecase) Sweep(ctx context.Context) (*SweepOutput, error) {
	ctx, span := s.startSpan(ctx, "Sweep")
	defer span.End()

	now := s.clock.Now()
	olderThan := now.Add(-s.cfg.GetMinute("modules.otp.sweeper.retention_minutes"))
	batch := s.cfg.GetInt("modules.otp.sweeper.batch_size")
	if batch <= 0 {
		batch = defaultSweepBatch
	}

	out := &SweepOutput{}
	archive := func(ctx context.Context, records []entity.OTP) error {
		if s.repoArchive == nil {
			return nil
		}
		key, err := s.repoArchive.Archive(ctx, records, now)
		if err != nil {
			slog.ErrorContext(ctx, "failed to archive swept otp", "count", len(records), "error", err)
			return err
		}
		out.ArchiveKeys = append(out.ArchiveKeys, key)
		return nil
	}

	for {
		n, err := s.repoDB.DeleteExpired(ctx, olderThan, batch, archive)
		if err != nil {
			return out, storageFailure(ctx, "delete expired otp", err, "older_than", olderThan.Format(time.RFC3339))
		}

		out.Deleted += n
		s.count(ctx, s.metrics.swept, int64(n))
		if n < batch {
			break
		}
	}

	if out.Deleted > 0 {
		slog.InfoContext(ctx, "expired otp swept", "deleted", out.Deleted, "archives", len(out.ArchiveKeys))
	}
	return out, nil
}
