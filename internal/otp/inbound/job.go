package inbound

import (
	"cmp"
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/yieldcycle/internal/otp/usecase"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/config"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goroutine"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/uid"
)

type ucSweeper interface {
	Sweep(ctx context.Context) (*usecase.SweepOutput, error)
}

// RegisterSweeper runs the expired-code sweep on a fixed interval when
// modules.otp.sweeper.enabled is set.
func RegisterSweeper(ctx context.Context, cfg config.Config, routine *goroutine.Manager, uuid uid.StringID, uc ucSweeper) {
	if !cfg.GetBool("modules.otp.sweeper.enabled") {
		return
	}

	interval := cmp.Or(cfg.GetSecond("modules.otp.sweeper.interval_seconds"), 5*time.Minute)
	slog.InfoContext(ctx, "Running job for sweeping expired otp", "interval", interval.String())

	routine.Every(ctx, interval, func(ctx context.Context) error {
		ctx = instrument.SetCorrelationID(ctx, uuid.Generate())
		_, err := uc.Sweep(ctx)
		return err
	})
}
