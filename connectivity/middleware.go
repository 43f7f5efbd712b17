package connectivity

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// HandlerMiddleware wraps a Handler without changing its signature.
type HandlerMiddleware func(next Handler) Handler

// Chain composes middlewares; the first is the outermost.
func Chain(mws ...HandlerMiddleware) HandlerMiddleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call with its duration.
func Logging(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)
			dur := time.Since(start)
			if err != nil {
				logger.ErrorContext(ctx, "connectivity: call failed",
					"duration_ms", dur.Milliseconds(), "payload_bytes", len(payload), "error", err)
			} else {
				logger.DebugContext(ctx, "connectivity: call ok",
					"duration_ms", dur.Milliseconds(), "payload_bytes", len(payload), "response_bytes", len(resp))
			}
			return resp, err
		}
	}
}

// Timeout bounds each call. A zero duration disables it.
func Timeout(d time.Duration) HandlerMiddleware {
	return func(next Handler) Handler {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, payload)
		}
	}
}

// Recovery turns a panic in a handler into an *ErrPanic.
func Recovery(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if v := recover(); v != nil {
					logger.ErrorContext(ctx, "connectivity: handler panic recovered",
						"panic", v, "stack", string(debug.Stack()))
					err = &ErrPanic{Value: v}
				}
			}()
			return next(ctx, payload)
		}
	}
}
