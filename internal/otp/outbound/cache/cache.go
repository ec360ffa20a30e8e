// Package cache stores codes in Redis: one hash per code, a pointer to the
// latest code per subject and purpose, and a sorted set of expiry times for
// the sweeper.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/yieldcycle/internal/otp/entity"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goerror"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
)

const (
	keyRecord = "otp:rec:"
	keyLatest = "otp:latest:"
	keyExpiry = "otp:expiry"
)

// Deletes the latest pointer only while it still names the swept code.
var unlinkLatest = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

type Cache struct {
	client redis.UniversalClient
	ins    instrument.Instrumentation
}

func New(client redis.UniversalClient, ins instrument.Instrumentation) *Cache {
	return &Cache{client: client, ins: ins}
}

func recordKey(id int64) string {
	return keyRecord + strconv.FormatInt(id, 10)
}

func latestKey(subjectID string, purpose entity.Purpose) string {
	return keyLatest + purpose.String() + ":" + subjectID
}

// Save writes the record and its indexes in one MULTI under a WATCH on the
// record key. Redis does not roll back a MULTI whose command fails, so a
// failed write removes whatever part of the record landed.
func (c *Cache) Save(ctx context.Context, otp entity.OTP) (err error) {
	ctx, span := c.startSpan(ctx, "Save")
	defer func() { c.endSpan(span, err) }()

	key := recordKey(otp.ID)
	latest := latestKey(otp.SubjectID, otp.Purpose)

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return goerror.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, toHash(otp))
			p.Set(ctx, latest, otp.ID, 0)
			p.ZAdd(ctx, keyExpiry, redis.Z{Score: float64(otp.ExpiresAt.UnixMilli()), Member: otp.ID})
			return nil
		})
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			c.discard(ctx, otp.ID, latest)
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return goerror.ErrConflict
	}
	return err
}

func (c *Cache) discard(ctx context.Context, id int64, latest string) {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, recordKey(id))
		unlinkLatest.Eval(ctx, p, []string{latest}, id)
		p.ZRem(ctx, keyExpiry, id)
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to discard partial otp write", "otp_id", id, "error", err)
	}
}

func (c *Cache) GetLatest(ctx context.Context, subjectID string, purpose entity.Purpose) (_ *entity.OTP, err error) {
	ctx, span := c.startSpan(ctx, "GetLatest")
	defer func() { c.endSpan(span, err) }()

	id, err := c.client.Get(ctx, latestKey(subjectID, purpose)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, goerror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return c.load(ctx, c.client, id)
}

// UpdateAttemptAndUsed is a WATCH/MULTI compare-and-set on the record hash.
func (c *Cache) UpdateAttemptAndUsed(ctx context.Context, in entity.AttemptUpdate) (_ *entity.OTP, err error) {
	ctx, span := c.startSpan(ctx, "UpdateAttemptAndUsed")
	defer func() { c.endSpan(span, err) }()

	key := recordKey(in.ID)
	var out *entity.OTP

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := c.load(ctx, tx, in.ID)
		if err != nil {
			return err
		}
		if cur.AttemptCount != in.ExpectedAttemptCount || cur.Used != in.ExpectedUsed {
			return goerror.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key,
				"attempt_count", in.AttemptCount,
				"used", boolField(in.Used),
				"updated_at", in.UpdatedAt.UnixNano(),
			)
			return nil
		})
		if err != nil {
			return err
		}

		updated := in.Apply(*cur)
		out = &updated
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, goerror.ErrConflict
	}
	if err != nil {
		return nil, err
	}

	return out, nil
}

// DeleteExpired takes the oldest expired ids from the expiry set. Two
// concurrent sweeps may both see a batch; deletes are idempotent.
func (c *Cache) DeleteExpired(
	ctx context.Context,
	olderThan time.Time,
	limit int,
	beforeCommit func(context.Context, []entity.OTP) error,
) (_ int, err error) {
	ctx, span := c.startSpan(ctx, "DeleteExpired")
	defer func() { c.endSpan(span, err) }()

	members, err := c.client.ZRangeByScore(ctx, keyExpiry, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(olderThan.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}

	records := make([]entity.OTP, 0, len(members))
	for _, m := range members {
		id, convErr := strconv.ParseInt(m, 10, 64)
		if convErr != nil {
			slog.WarnContext(ctx, "invalid member in otp expiry set", "member", m)
			continue
		}
		rec, loadErr := c.load(ctx, c.client, id)
		if errors.Is(loadErr, goerror.ErrNotFound) {
			continue
		}
		if loadErr != nil {
			return 0, loadErr
		}
		records = append(records, *rec)
	}

	if beforeCommit != nil && len(records) > 0 {
		if err := beforeCommit(ctx, records); err != nil {
			return 0, err
		}
	}

	_, err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, rec := range records {
			p.Del(ctx, recordKey(rec.ID))
			unlinkLatest.Eval(ctx, p, []string{latestKey(rec.SubjectID, rec.Purpose)}, rec.ID)
		}
		p.ZRem(ctx, keyExpiry, toAny(members)...)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(members), nil
}

func (c *Cache) load(ctx context.Context, r hashReader, id int64) (*entity.OTP, error) {
	fields, err := r.HGetAll(ctx, recordKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, goerror.ErrNotFound
	}
	return fromHash(id, fields)
}

func (c *Cache) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.ins.Tracer("otp.outbound.cache").Start(ctx, name)
}

func (c *Cache) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) && !errors.Is(err, goerror.ErrConflict) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func toAny(members []string) []any {
	out := make([]any, len(members))
	for i, m := range members {
		out[i] = m
	}
	return out
}
