package slogx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/medibook/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := slogx.WithContext(context.Background(), base)
	ctx = slogx.WithRequestID(ctx, "req_1")
	slogx.FromContext(ctx).Info("hello")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	require.Equal(t, "req_1", lines[0]["req_id"])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	t.Parallel()

	require.Same(t, slog.Default(), slogx.FromContext(context.Background()))
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hook := slogx.RequestLogger(logger)

	req := httptest.NewRequest(http.MethodGet, "http://api.test/doctors", nil)
	req.Header.Set("X-Request-ID", "req_abc")

	hook(context.Background(), req, &http.Response{StatusCode: http.StatusOK}, 12*time.Millisecond, nil)
	hook(context.Background(), req, &http.Response{StatusCode: http.StatusBadGateway}, time.Millisecond, nil)
	hook(context.Background(), req, nil, time.Millisecond, errors.New("connection refused"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)

	require.Equal(t, "DEBUG", lines[0]["level"])
	require.Equal(t, "/doctors", lines[0]["path"])
	require.Equal(t, "req_abc", lines[0]["req_id"])
	require.EqualValues(t, 200, lines[0]["status"])

	require.Equal(t, "WARN", lines[1]["level"])
	require.Equal(t, "http_request_failed", lines[2]["msg"])
	require.Equal(t, "connection refused", lines[2]["error"])
}

func TestNewHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := slogx.New(slogx.Config{
		Service: "medibook",
		Version: "test",
		Env:     "test",
		Level:   "warn",
		Format:  "json",
		Output:  &buf,
	})
	logger.Info("dropped")
	logger.Warn("kept")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	require.Equal(t, "kept", lines[0]["msg"])
	require.Equal(t, "medibook", lines[0]["service"])
}
