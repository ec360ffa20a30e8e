package cache

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
)

func toHash(o entity.OTP) map[string]any {
	return map[string]any{
		"id":            o.ID,
		"subject_id":    o.SubjectID,
		"purpose":       int16(o.Purpose),
		"code_hash":     o.CodeHash,
		"used":          boolField(o.Used),
		"attempt_count": o.AttemptCount,
		"max_attempts":  o.MaxAttempts,
		"expires_at":    o.ExpiresAt.UnixNano(),
		"created_at":    o.CreatedAt.UnixNano(),
		"updated_at":    o.UpdatedAt.UnixNano(),
	}
}

func fromHash(id int64, f map[string]string) (*entity.OTP, error) {
	var errs []error
	num := func(key string) int64 {
		n, err := strconv.ParseInt(f[key], 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", key, err))
		}
		return n
	}

	o := &entity.OTP{
		ID:           id,
		SubjectID:    f["subject_id"],
		Purpose:      entity.Purpose(num("purpose")),
		CodeHash:     f["code_hash"],
		Used:         f["used"] == "1",
		AttemptCount: int(num("attempt_count")),
		MaxAttempts:  int(num("max_attempts")),
		ExpiresAt:    time.Unix(0, num("expires_at")).UTC(),
		CreatedAt:    time.Unix(0, num("created_at")).UTC(),
		UpdatedAt:    time.Unix(0, num("updated_at")).UTC(),
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("decode otp %d: %v", id, errs)
	}
	return o, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
