// Package archive writes swept codes to object storage as JSON lines. The
// code itself is never written.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/storage"
)

type record struct {
	ID           int64     `json:"id"`
	SubjectID    string    `json:"subject_id"`
	Purpose      string    `json:"purpose"`
	Used         bool      `json:"used"`
	AttemptCount int       `json:"attempt_count"`
	MaxAttempts  int       `json:"max_attempts"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Archive struct {
	client storage.Storage
	bucket string
	prefix string
	ins    instrument.Instrumentation

	mu    sync.Mutex
	ready bool
}

func New(client storage.Storage, bucket, prefix string, ins instrument.Instrumentation) *Archive {
	return &Archive{client: client, bucket: bucket, prefix: prefix, ins: ins}
}

// Archive uploads one object per batch, keyed by sweep date and the first
// id in the batch, and returns its key.
func (a *Archive) Archive(ctx context.Context, records []entity.OTP, at time.Time) (key string, err error) {
	ctx, span := a.ins.Tracer("otp.outbound.archive").Start(ctx, "Archive")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(records) == 0 {
		return "", nil
	}
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(record{
			ID:           r.ID,
			SubjectID:    r.SubjectID,
			Purpose:      r.Purpose.String(),
			Used:         r.Used,
			AttemptCount: r.AttemptCount,
			MaxAttempts:  r.MaxAttempts,
			ExpiresAt:    r.ExpiresAt,
			CreatedAt:    r.CreatedAt,
			UpdatedAt:    r.UpdatedAt,
		}); err != nil {
			return "", err
		}
	}

	key = objectKey(a.prefix, at, records[0].ID)
	_, err = a.client.PutObject(ctx, a.bucket, key, &buf, storage.PutOptions{
		Size:        int64(buf.Len()),
		ContentType: "application/x-ndjson",
		Metadata:    map[string]string{"records": fmt.Sprint(len(records))},
	})
	if err != nil {
		return "", err
	}

	return key, nil
}

// ensureBucket succeeds once per process; failures retry on the next call.
func (a *Archive) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ready {
		return nil
	}
	if err := a.client.EnsureBucket(ctx, a.bucket); err != nil {
		return err
	}
	a.ready = true
	return nil
}

func objectKey(prefix string, at time.Time, firstID int64) string {
	at = at.UTC()
	return fmt.Sprintf("%s%s/%d-%d.jsonl", prefix, at.Format("2006/01/02"), at.UnixNano(), firstID)
}
