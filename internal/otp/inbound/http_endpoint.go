package inbound

import (
	"github.com/shandysiswandi/yieldcycle/internal/otp/usecase"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goerror"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/router"
)

// HTTPEndpoint exposes the code lifecycle over JSON.
type HTTPEndpoint struct {
	uc uc
}

// Issue sends a fresh code to the destination.
// @Summary Issue a verification code
// @Description Invalidates the live code for the subject and purpose and delivers a new one. The code is never returned.
// @Tags OTP
// @Accept json
// @Produce json
// @Param request body IssueRequest true "Issue payload"
// @Success 200 {object} router.successResponse{data=IssueResponse} "Code issued"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 409 {object} router.errorResponse "Issue already in progress"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 503 {object} router.errorResponse "Delivery failed"
// @Router /api/v1/otp/issue [post]
func (h *HTTPEndpoint) Issue(r *router.Request) (any, error) {
	var req IssueRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.Generate(r.Context(), usecase.GenerateInput{
		SubjectID:   req.SubjectID,
		Purpose:     req.Purpose,
		Destination: req.Destination,
		TTLMinutes:  req.TTLMinutes,
	})
	if err != nil {
		return nil, err
	}

	return IssueResponse{
		Handle:           resp.Handle,
		ExpiresInSeconds: resp.ExpiresInSeconds,
		ExpiresAt:        resp.ExpiresAt,
		message:          "Verification code sent",
	}, nil
}

// Verify checks a code. A rejected code answers 401 with the attempts left;
// the reason is never disclosed.
// @Summary Verify a code
// @Tags OTP
// @Accept json
// @Produce json
// @Param request body VerifyRequest true "Verify payload"
// @Success 200 {object} router.successResponse{data=VerifyResponse} "Code verified"
// @Failure 401 {object} router.errorResponse "Invalid or expired code"
// @Failure 404 {object} router.errorResponse "No code issued"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Router /api/v1/otp/verify [post]
func (h *HTTPEndpoint) Verify(r *router.Request) (any, error) {
	var req VerifyRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.Validate(r.Context(), usecase.ValidateInput{
		SubjectID: req.SubjectID,
		Purpose:   req.Purpose,
		Code:      req.Code,
	})
	if err != nil {
		return nil, err
	}

	if !resp.IsValid {
		return nil, goerror.NewBusiness(resp.Message, goerror.CodeUnauthorized,
			goerror.WithIntField("remaining_attempts", int64(resp.RemainingAttempts)))
	}

	return VerifyResponse{Token: resp.Token}, nil
}

// Resend issues a new code once the live one is close enough to expiry.
// @Summary Resend a verification code
// @Tags OTP
// @Accept json
// @Produce json
// @Param request body IssueRequest true "Resend payload"
// @Success 200 {object} router.successResponse{data=IssueResponse} "Code re-sent"
// @Failure 429 {object} router.errorResponse "Cooldown active"
// @Failure 503 {object} router.errorResponse "Delivery failed"
// @Router /api/v1/otp/resend [post]
func (h *HTTPEndpoint) Resend(r *router.Request) (any, error) {
	var req IssueRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.Resend(r.Context(), usecase.ResendInput{
		SubjectID:   req.SubjectID,
		Purpose:     req.Purpose,
		Destination: req.Destination,
		TTLMinutes:  req.TTLMinutes,
	})
	if err != nil {
		return nil, err
	}

	return IssueResponse{
		Handle:           resp.Handle,
		ExpiresInSeconds: resp.ExpiresInSeconds,
		ExpiresAt:        resp.ExpiresAt,
		message:          "Verification code re-sent",
	}, nil
}
