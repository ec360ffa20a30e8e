package usecase

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/clock"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/config"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goerror"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/hash"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/idempotency"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/jwt"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/otpcode"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/validator"
)

const testConfig = `
modules:
  otp:
    code_length: 6
    max_attempts: 3
    default_ttl_minutes: 5
    resend_cooldown_seconds: 60
    operation_timeout_seconds: 5
    sweeper:
      retention_minutes: 60
      batch_size: 2
`

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// memStore mimics the guarded writes of the real stores.
type memStore struct {
	mu        sync.Mutex
	records   map[int64]entity.OTP
	saveErr   error
	getErr    error
	updateErr error
	conflicts int
	block     bool
	updates   int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[int64]entity.OTP)}
}

func (m *memStore) Save(ctx context.Context, otp entity.OTP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[otp.ID] = otp
	return nil
}

func (m *memStore) GetLatest(ctx context.Context, subjectID string, purpose entity.Purpose) (*entity.OTP, error) {
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}

	var latest *entity.OTP
	for _, rec := range m.records {
		if rec.SubjectID != subjectID || rec.Purpose != purpose {
			continue
		}
		if latest == nil || rec.ID > latest.ID {
			r := rec
			latest = &r
		}
	}
	if latest == nil {
		return nil, goerror.ErrNotFound
	}
	return latest, nil
}

func (m *memStore) UpdateAttemptAndUsed(ctx context.Context, in entity.AttemptUpdate) (*entity.OTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}

	rec, ok := m.records[in.ID]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	if m.conflicts > 0 {
		// a concurrent attempt lands first
		m.conflicts--
		rec.AttemptCount++
		m.records[in.ID] = rec
		return nil, goerror.ErrConflict
	}
	if rec.AttemptCount != in.ExpectedAttemptCount || rec.Used != in.ExpectedUsed {
		return nil, goerror.ErrConflict
	}

	rec = in.Apply(rec)
	m.records[in.ID] = rec
	m.updates++
	return &rec, nil
}

func (m *memStore) DeleteExpired(ctx context.Context, olderThan time.Time, limit int, beforeCommit func(context.Context, []entity.OTP) error) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var batch []entity.OTP
	for _, rec := range m.records {
		if rec.ExpiresAt.Before(olderThan) {
			batch = append(batch, rec)
		}
	}
	slices.SortFunc(batch, func(a, b entity.OTP) int { return cmp.Compare(a.ID, b.ID) })
	if len(batch) > limit {
		batch = batch[:limit]
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if err := beforeCommit(ctx, batch); err != nil {
		return 0, err
	}
	for _, rec := range batch {
		delete(m.records, rec.ID)
	}
	return len(batch), nil
}

func (m *memStore) get(id int64) entity.OTP {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

type fakeDelivery struct {
	mu   sync.Mutex
	sent []entity.Delivery
	err  error
	fail bool
}

func (f *fakeDelivery) Send(_ context.Context, msg entity.Delivery) (*entity.DeliveryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msg)
	return &entity.DeliveryResult{Success: !f.fail, MessageID: "msg-" + msg.Code}, nil
}

func (f *fakeDelivery) last(t *testing.T) entity.Delivery {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("nothing delivered")
	}
	return f.sent[len(f.sent)-1]
}

type fakeArchive struct {
	batches [][]entity.OTP
	err     error
}

func (f *fakeArchive) Archive(_ context.Context, records []entity.OTP, _ time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.batches = append(f.batches, records)
	return "archive-key", nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (f *fakeLocker) Lock(_ context.Context, key string, _ time.Duration) (idempotency.Unlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.held == nil {
		f.held = make(map[string]bool)
	}
	if f.held[key] {
		return nil, idempotency.ErrLocked
	}
	f.held[key] = true
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
		return nil
	}, nil
}

type seqID struct {
	mu sync.Mutex
	n  int64
}

func (s *seqID) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.n
}

type fixedUUID struct{}

func (fixedUUID) Generate() string { return "jti" }

type harness struct {
	uc       *Usecase
	store    *memStore
	delivery *fakeDelivery
	archive  *fakeArchive
	locker   *fakeLocker
	clock    *clock.Manual
	jwt      *jwt.Symmetric
	hasher   *hash.HMACSHA256
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfig(t, testConfig)
}

func newHarnessWithConfig(t *testing.T, yaml string) *harness {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	clk := clock.NewManual(t0)
	signer, err := jwt.NewHS512(jwt.Config{
		Secret:    bytes.Repeat([]byte("s"), 64),
		Issuer:    "yieldcycle",
		Audiences: []string{"yieldcycle"},
		TTL:       10 * time.Minute,
		Clock:     clk,
		UUID:      fixedUUID{},
	})
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}
	hasher, err := hash.NewHMACSHA256(bytes.Repeat([]byte("h"), 32))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	h := &harness{
		store:    newMemStore(),
		delivery: &fakeDelivery{},
		archive:  &fakeArchive{},
		locker:   &fakeLocker{},
		clock:    clk,
		jwt:      signer,
		hasher:   hasher,
	}
	h.uc = New(Dependency{
		RepoDB:       h.store,
		RepoDelivery: h.delivery,
		RepoArchive:  h.archive,
		Locker:       h.locker,
		Validator:    v,
		Config:       cfg,
		Generator:    otpcode.New(),
		Hasher:       hasher,
		UID:          &seqID{},
		Clock:        clk,
		JWT:          signer,
		Instrument:   instrument.NewNoop(),
	})
	return h
}

func (h *harness) generate(t *testing.T, subject, purpose string) (*GenerateOutput, string) {
	t.Helper()

	out, err := h.uc.Generate(context.Background(), GenerateInput{
		SubjectID:   subject,
		Purpose:     purpose,
		Destination: subject + "@example.com",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return out, h.delivery.last(t).Code
}

func (h *harness) validate(t *testing.T, subject, purpose, code string) *ValidateOutput {
	t.Helper()

	out, err := h.uc.Validate(context.Background(), ValidateInput{SubjectID: subject, Purpose: purpose, Code: code})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return out
}

func wrongCode(code string) string {
	b := []byte(code)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}

func assertGoError(t *testing.T, err error, status int) *goerror.Error {
	t.Helper()

	var gerr *goerror.Error
	if !errors.As(err, &gerr) {
		t.Fatalf("error = %v (%T), want *goerror.Error", err, err)
	}
	if gerr.StatusCode() != status {
		t.Fatalf("status = %d, want %d (%s)", gerr.StatusCode(), status, gerr.String())
	}
	return gerr
}
