package inbound

import (
	"context"

	"github.com/shandysiswandi/yieldcycle/internal/otp/usecase"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/router"
)

type uc interface {
	Generate(ctx context.Context, in usecase.GenerateInput) (*usecase.GenerateOutput, error)
	Validate(ctx context.Context, in usecase.ValidateInput) (*usecase.ValidateOutput, error)
	Resend(ctx context.Context, in usecase.ResendInput) (*usecase.GenerateOutput, error)
}

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	r.POST("/api/v1/otp/issue", end.Issue)
	r.POST("/api/v1/otp/verify", end.Verify)
	r.POST("/api/v1/otp/resend", end.Resend)
}
