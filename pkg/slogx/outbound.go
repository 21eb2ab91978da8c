package slogx

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// RequestLogger returns a hook that logs each outbound call once it has
// completed. Its signature matches httpx.ResponseHook. Server errors and
// transport failures log at warn, everything else at debug.
func RequestLogger(base *slog.Logger) func(context.Context, *http.Request, *http.Response, time.Duration, error) {
	return func(ctx context.Context, req *http.Request, resp *http.Response, elapsed time.Duration, err error) {
		logger := base
		if logger == nil {
			logger = FromContext(ctx)
		}

		attrs := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"duration_ms", elapsed.Milliseconds(),
		}
		if id := req.Header.Get("X-Request-ID"); id != "" {
			attrs = append(attrs, "req_id", id)
		}

		switch {
		case err != nil:
			logger.WarnContext(ctx, "http_request_failed", append(attrs, "error", err)...)
		case resp.StatusCode >= http.StatusInternalServerError:
			logger.WarnContext(ctx, "http_request", append(attrs, "status", resp.StatusCode)...)
		default:
			logger.DebugContext(ctx, "http_request", append(attrs, "status", resp.StatusCode)...)
		}
	}
}
