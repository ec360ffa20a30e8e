package inbound

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/yieldcycle/internal/otp/usecase"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goerror"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/router"
)

type fakeUC struct {
	generateIn usecase.GenerateInput
	validateIn usecase.ValidateInput
	resendIn   usecase.ResendInput

	generateOut *usecase.GenerateOutput
	validateOut *usecase.ValidateOutput
	err         error
}

func (f *fakeUC) Generate(_ context.Context, in usecase.GenerateInput) (*usecase.GenerateOutput, error) {
	f.generateIn = in
	return f.generateOut, f.err
}

func (f *fakeUC) Validate(_ context.Context, in usecase.ValidateInput) (*usecase.ValidateOutput, error) {
	f.validateIn = in
	return f.validateOut, f.err
}

func (f *fakeUC) Resend(_ context.Context, in usecase.ResendInput) (*usecase.GenerateOutput, error) {
	f.resendIn = in
	return f.generateOut, f.err
}

func serve(t *testing.T, uc *fakeUC, path, body string) (int, map[string]any) {
	t.Helper()

	r := router.NewRouter(router.Config{Instrument: instrument.NewNoop()})
	RegisterHTTPEndpoint(r, uc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, out
}

func TestHTTPEndpoint_Issue(t *testing.T) {
	expires := time.Date(2026, 5, 4, 9, 5, 0, 0, time.UTC)
	uc := &fakeUC{generateOut: &usecase.GenerateOutput{Handle: "42", ExpiresInSeconds: 300, ExpiresAt: expires}}

	code, body := serve(t, uc, "/api/v1/otp/issue",
		`{"subject_id":"user-1","purpose":"login","destination":"a@b.c","ttl_minutes":2}`)
	if code != http.StatusOK || body["success"] != true || body["message"] != "Verification code sent" {
		t.Fatalf("issue = %d %v", code, body)
	}
	data, _ := body["data"].(map[string]any)
	if data["handle"] != "42" || data["expires_in_seconds"] != float64(300) {
		t.Fatalf("data = %v", data)
	}
	if _, leaked := data["code"]; leaked {
		t.Fatalf("issue response carries a code")
	}
	if uc.generateIn.Purpose != "login" || uc.generateIn.TTLMinutes != 2 || uc.generateIn.Destination != "a@b.c" {
		t.Fatalf("input = %+v", uc.generateIn)
	}
}

func TestHTTPEndpoint_IssueBadBody(t *testing.T) {
	code, body := serve(t, &fakeUC{}, "/api/v1/otp/issue", `{"subject_id":`)
	if code != http.StatusBadRequest || body["success"] != false {
		t.Fatalf("bad body = %d %v", code, body)
	}
}

func TestHTTPEndpoint_Verify(t *testing.T) {
	tests := []struct {
		name       string
		out        *usecase.ValidateOutput
		err        error
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name:       "verified",
			out:        &usecase.ValidateOutput{IsValid: true, Message: "Code verified", RemainingAttempts: 2, Token: "tok"},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				data, _ := body["data"].(map[string]any)
				if data["token"] != "tok" {
					t.Fatalf("data = %v", data)
				}
			},
		},
		{
			name:       "rejected",
			out:        &usecase.ValidateOutput{Message: "Invalid or expired code", RemainingAttempts: 1, Reason: usecase.ReasonMismatch},
			wantStatus: http.StatusUnauthorized,
			check: func(t *testing.T, body map[string]any) {
				fields, _ := body["error"].(map[string]any)
				if body["message"] != "Invalid or expired code" || fields["remaining_attempts"] != "1" {
					t.Fatalf("body = %v", body)
				}
				if strings.Contains(strings.ToUpper(body["message"].(string)), "MISMATCH") {
					t.Fatalf("reason leaked: %v", body)
				}
			},
		},
		{
			name:       "not found",
			err:        goerror.NewBusiness("No verification code found, request a new one", goerror.CodeNotFound),
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &fakeUC{validateOut: tt.out, err: tt.err}
			code, body := serve(t, uc, "/api/v1/otp/verify", `{"subject_id":"user-1","purpose":"LOGIN","code":"123456"}`)
			if code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%v)", code, tt.wantStatus, body)
			}
			if uc.validateIn.Code != "123456" {
				t.Fatalf("input = %+v", uc.validateIn)
			}
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestHTTPEndpoint_ResendCooldown(t *testing.T) {
	uc := &fakeUC{err: goerror.NewBusiness("wait", goerror.CodeTooManyRequest, goerror.WithIntField("retry_after_seconds", 30))}

	code, body := serve(t, uc, "/api/v1/otp/resend", `{"subject_id":"user-1","purpose":"LOGIN","destination":"a@b.c"}`)
	if code != http.StatusTooManyRequests || body["success"] != false {
		t.Fatalf("resend = %d %v", code, body)
	}
	if uc.resendIn.SubjectID != "user-1" {
		t.Fatalf("input = %+v", uc.resendIn)
	}
}
