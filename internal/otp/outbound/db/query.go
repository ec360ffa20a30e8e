package db

import (
	"time"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
)

const otpColumns = `id, subject_id, purpose, code_hash, used, attempt_count, max_attempts, expires_at, created_at, updated_at`

const insertOTP = `
INSERT INTO otp_codes (` + otpColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const selectLatestOTP = `
SELECT ` + otpColumns + ` FROM otp_codes
WHERE subject_id = $1 AND purpose = $2
ORDER BY created_at DESC, id DESC
LIMIT 1`

const updateOTPAttempt = `
UPDATE otp_codes
SET attempt_count = $2, used = $3, updated_at = $4
WHERE id = $1 AND attempt_count = $5 AND used = $6
RETURNING ` + otpColumns

const existsOTP = `SELECT EXISTS (SELECT 1 FROM otp_codes WHERE id = $1)`

const deleteExpiredOTP = `
DELETE FROM otp_codes
WHERE id IN (
    SELECT id FROM otp_codes
    WHERE expires_at < $1
    ORDER BY expires_at
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + otpColumns

type otpRow struct {
	ID           int64     `db:"id"`
	SubjectID    string    `db:"subject_id"`
	Purpose      int16     `db:"purpose"`
	CodeHash     string    `db:"code_hash"`
	Used         bool      `db:"used"`
	AttemptCount int32     `db:"attempt_count"`
	MaxAttempts  int32     `db:"max_attempts"`
	ExpiresAt    time.Time `db:"expires_at"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r otpRow) toEntity() entity.OTP {
	return entity.OTP{
		ID:           r.ID,
		SubjectID:    r.SubjectID,
		Purpose:      entity.Purpose(r.Purpose),
		CodeHash:     r.CodeHash,
		Used:         r.Used,
		AttemptCount: int(r.AttemptCount),
		MaxAttempts:  int(r.MaxAttempts),
		ExpiresAt:    r.ExpiresAt.UTC(),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}
