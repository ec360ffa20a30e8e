package inbound

import (
	"context"

	"github.com/shandysiswandi/yieldcycle/internal/notification/usecase"
)

type uc interface {
	ConsumeOTPIssued(ctx context.Context, in usecase.ConsumeOTPIssuedInput) error
}
