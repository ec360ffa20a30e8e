package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"github.com/shandysiswandi/yieldcycle/internal/pkg/stacktrace"
)

// dispatch runs handler with panic recovery and applies auto ack.
func dispatch(ctx context.Context, kind string, msg responder, handler Handler, autoAck bool) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			stack := debug.Stack()
			if paths := stacktrace.InternalPaths(stack); len(paths) > 0 {
				slog.ErrorContext(ctx, "panic in messaging handler", "kind", kind, "panic", rvr, "stack", paths)
			} else {
				slog.ErrorContext(ctx, "panic in messaging handler", "kind", kind, "panic", rvr, "stack", string(stack))
			}
			err = fmt.Errorf("messaging: panic in %s handler: %v", kind, rvr)
		}
		if !autoAck || msg.responded() {
			return
		}
		if err == nil {
			err = msg.Ack(ctx)
			return
		}
		if nerr := msg.Nack(ctx); nerr != nil {
			slog.ErrorContext(ctx, "failed to nack message", "kind", kind, "id", msg.ID(), "error", nerr)
		}
	}()

	return handler(ctx, msg)
}

type responder interface {
	Message
	responded() bool
}

// once guards a message against double ack/nack.
type once struct {
	done atomic.Bool
}

func (o *once) responded() bool { return o.done.Load() }

func (o *once) claim() bool { return !o.done.Swap(true) }
