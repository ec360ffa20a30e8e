package usecase

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/config"
)

func TestGenerate_IssuesAndDelivers(t *testing.T) {
	h := newHarness(t)

	out, code := h.generate(t, "user-1", "LOGIN")

	if out.ExpiresInSeconds != 300 {
		t.Fatalf("ExpiresInSeconds = %d, want 300", out.ExpiresInSeconds)
	}
	if out.Handle == "" || out.Handle == code {
		t.Fatalf("Handle = %q must be opaque and not the code", out.Handle)
	}
	if len(code) != 6 {
		t.Fatalf("delivered code %q", code)
	}

	id, _ := strconv.ParseInt(out.Handle, 10, 64)
	rec := h.store.get(id)
	if rec.CodeHash == "" || rec.CodeHash == code || rec.Used || rec.AttemptCount != 0 || rec.MaxAttempts != 3 {
		t.Fatalf("stored record = %+v", rec)
	}
	if got := h.delivery.last(t); got.Destination != "user-1@example.com" || got.Purpose != entity.PurposeLogin {
		t.Fatalf("delivery = %+v", got)
	}
	if ok, err := rec.Verify(code, h.clock.Now(), h.hasher); !ok || err != nil {
		t.Fatalf("stored digest does not match the delivered code: %v, %v", ok, err)
	}
}

func TestGenerate_StoresOnlyDigest(t *testing.T) {
	h := newHarness(t)

	var codes []string
	for _, s := range []string{"a", "b", "c"} {
		_, code := h.generate(t, "user-"+s, "LOGIN")
		codes = append(codes, code)
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	for id, rec := range h.store.records {
		if len(rec.CodeHash) != 64 {
			t.Fatalf("record %d CodeHash = %q, want hex digest", id, rec.CodeHash)
		}
		for _, code := range codes {
			if strings.Contains(rec.CodeHash, code) {
				t.Fatalf("record %d holds plaintext code %q", id, code)
			}
		}
	}
}

// A reload can carry a length the validation rule refuses; issuing falls
// back to the default so the code stays verifiable.
func TestGenerate_CodeLengthOutOfRange(t *testing.T) {
	for _, length := range []int{2, 12, 32} {
		h := newHarnessWithConfig(t, strings.Replace(testConfig, "code_length: 6", "code_length: "+strconv.Itoa(length), 1))

		_, code := h.generate(t, "user-1", "LOGIN")

		if len(code) != entity.DefaultCodeLength {
			t.Fatalf("code_length %d issued %q", length, code)
		}
		if out := h.validate(t, "user-1", "LOGIN", code); !out.IsValid {
			t.Fatalf("code_length %d: issued code rejected: %+v", length, out)
		}
	}
}

func TestGenerate_CodeLengthInRange(t *testing.T) {
	h := newHarnessWithConfig(t, strings.Replace(testConfig, "code_length: 6", "code_length: 10", 1))

	_, code := h.generate(t, "user-1", "LOGIN")

	if len(code) != 10 {
		t.Fatalf("issued %q, want 10 digits", code)
	}
	if out := h.validate(t, "user-1", "LOGIN", code); !out.IsValid {
		t.Fatalf("issued code rejected: %+v", out)
	}
}

func TestCheckSettings(t *testing.T) {
	tests := []struct {
		length  string
		wantErr bool
	}{
		{length: "0", wantErr: false},
		{length: "4", wantErr: false},
		{length: "10", wantErr: false},
		{length: "3", wantErr: true},
		{length: "12", wantErr: true},
		{length: "-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.length, func(t *testing.T) {
			cfg, err := config.NewViperFromBytes("yaml", []byte("modules:\n  otp:\n    code_length: "+tt.length+"\n"))
			if err != nil {
				t.Fatalf("config: %v", err)
			}
			if err := CheckSettings(cfg); (err != nil) != tt.wantErr {
				t.Fatalf("CheckSettings() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerate_CustomTTL(t *testing.T) {
	h := newHarness(t)

	out, err := h.uc.Generate(context.Background(), GenerateInput{
		SubjectID:   "user-1",
		Purpose:     "registration",
		Destination: " User-1@Example.com ",
		TTLMinutes:  15,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if out.ExpiresInSeconds != 900 || !out.ExpiresAt.Equal(t0.Add(15*time.Minute)) {
		t.Fatalf("output = %+v", out)
	}
	if got := h.delivery.last(t).Destination; got != "user-1@example.com" {
		t.Fatalf("destination not normalized: %q", got)
	}
}

func TestGenerate_ValidationError(t *testing.T) {
	h := newHarness(t)

	tests := []GenerateInput{
		{SubjectID: "user-1", Purpose: "TRANSFER", Destination: "a@b.co"},
		{SubjectID: "", Purpose: "LOGIN", Destination: "a@b.co"},
		{SubjectID: "user-1", Purpose: "LOGIN", Destination: "not-an-email"},
		{SubjectID: "user-1", Purpose: "LOGIN", Destination: "a@b.co", TTLMinutes: 61},
	}
	for _, in := range tests {
		_, err := h.uc.Generate(context.Background(), in)
		assertGoError(t, err, http.StatusUnprocessableEntity)
	}
	if len(h.store.records) != 0 {
		t.Fatalf("invalid input reached the store")
	}
}

// A second generate consumes the first code: at most one live code per
// subject and purpose.
func TestGenerate_InvalidatesPrevious(t *testing.T) {
	h := newHarness(t)

	first, code1 := h.generate(t, "user-1", "LOGIN")
	h.clock.Advance(10 * time.Second)
	_, code2 := h.generate(t, "user-1", "LOGIN")

	id1, _ := strconv.ParseInt(first.Handle, 10, 64)
	rec1 := h.store.get(id1)
	if !rec1.Used {
		t.Fatalf("first record must be invalidated")
	}

	if ok, err := rec1.Verify(code1, h.clock.Now(), h.hasher); ok || !errors.Is(err, entity.ErrAlreadyUsed) {
		t.Fatalf("first code Verify() = %v, %v, want ErrAlreadyUsed", ok, err)
	}

	if code1 == code2 {
		t.Skip("both codes collided")
	}
	if out := h.validate(t, "user-1", "LOGIN", code1); out.IsValid {
		t.Fatalf("first code accepted after regeneration")
	}
	if out := h.validate(t, "user-1", "LOGIN", code2); !out.IsValid {
		t.Fatalf("second code rejected: %+v", out)
	}
}

func TestGenerate_OtherPurposeUntouched(t *testing.T) {
	h := newHarness(t)

	login, _ := h.generate(t, "user-1", "LOGIN")
	h.generate(t, "user-1", "PASSWORD_RESET")

	id, _ := strconv.ParseInt(login.Handle, 10, 64)
	if h.store.get(id).Used {
		t.Fatalf("code for another purpose was invalidated")
	}
}

func TestGenerate_DeliveryFailureKeepsRecord(t *testing.T) {
	tests := []struct {
		name string
		set  func(*fakeDelivery)
	}{
		{name: "error", set: func(d *fakeDelivery) { d.err = errors.New("smtp 421") }},
		{name: "not accepted", set: func(d *fakeDelivery) { d.fail = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.set(h.delivery)

			_, err := h.uc.Generate(context.Background(), GenerateInput{SubjectID: "user-1", Purpose: "LOGIN", Destination: "a@b.co"})

			assertGoError(t, err, http.StatusServiceUnavailable)
			var derr *DeliveryError
			if !errors.As(err, &derr) {
				t.Fatalf("error = %v, want DeliveryError", err)
			}
			if len(h.store.records) != 1 {
				t.Fatalf("record count = %d, want 1 (no compensating delete)", len(h.store.records))
			}
		})
	}
}

func TestGenerate_StorageFailure(t *testing.T) {
	h := newHarness(t)
	h.store.saveErr = errors.New("connection reset")

	_, err := h.uc.Generate(context.Background(), GenerateInput{SubjectID: "user-1", Purpose: "LOGIN", Destination: "a@b.co"})

	assertGoError(t, err, http.StatusInternalServerError)
	var serr *StorageError
	if !errors.As(err, &serr) || serr.Op != "save otp" {
		t.Fatalf("error = %v, want StorageError(save otp)", err)
	}
	if len(h.delivery.sent) != 0 {
		t.Fatalf("code delivered although it was never stored")
	}
}

func TestGenerate_TimeoutIsStorageFailure(t *testing.T) {
	h := newHarness(t)
	h.store.block = true
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.uc.Generate(ctx, GenerateInput{SubjectID: "user-1", Purpose: "LOGIN", Destination: "a@b.co"})

	var serr *StorageError
	if !errors.As(err, &serr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want StorageError wrapping deadline", err)
	}
}

func TestGenerate_ConcurrentIssueRejected(t *testing.T) {
	h := newHarness(t)
	unlock, err := h.locker.Lock(context.Background(), "otp:issue:LOGIN:user-1", time.Minute)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer unlock(context.Background())

	_, err = h.uc.Generate(context.Background(), GenerateInput{SubjectID: "user-1", Purpose: "LOGIN", Destination: "a@b.co"})

	assertGoError(t, err, http.StatusConflict)
}

func TestGenerate_ReleasesLock(t *testing.T) {
	h := newHarness(t)

	h.generate(t, "user-1", "LOGIN")

	if len(h.locker.held) != 0 {
		t.Fatalf("lock still held: %v", h.locker.held)
	}
}
