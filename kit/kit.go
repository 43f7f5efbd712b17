// Package kit holds the transport-neutral endpoint shape shared by the
// hub's HTTP, WebSocket and MCP surfaces, and the context values they set.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is one operation independent of the transport that carries it.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs each call with its transport and duration.
func Logging(logger *slog.Logger, name string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{"endpoint", name, "transport", GetTransport(ctx),
				"request_id", GetRequestID(ctx), "duration_ms", time.Since(start).Milliseconds()}
			if err != nil {
				logger.WarnContext(ctx, "kit: endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "kit: endpoint ok", attrs...)
			}
			return resp, err
		}
	}
}
