package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized matches an *HTTPError with status 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden matches an *HTTPError with status 403.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound matches an *HTTPError with status 404.
	ErrNotFound = errors.New("not found")
)

// NetworkError reports a call that produced no response: DNS, connection
// failures, timeouts and cancellation.
type NetworkError struct {
	Op  string // "GET /doctors"
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	Op         string
	StatusCode int
	// Message is the server's "error" or "message" field when present,
	// otherwise the status text.
	Message string
	Body    []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// errorBody covers the error shapes the backend produces.
type errorBody struct {
	Error            any    `json:"error"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
}

func newHTTPError(op string, resp *Response) *HTTPError {
	return &HTTPError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    ErrorMessage(resp.StatusCode, resp.Body),
		Body:       resp.Body,
	}
}

// ErrorMessage extracts a human readable message from an error body.
func ErrorMessage(status int, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		switch v := eb.Error.(type) {
		case string:
			if eb.ErrorDescription != "" {
				return v + ": " + eb.ErrorDescription
			}
			if v != "" {
				return v
			}
		case map[string]any:
			if msg, ok := v["message"].(string); ok && msg != "" {
				return msg
			}
		}
		if eb.Message != "" {
			return eb.Message
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "{") {
		return text
	}
	return http.StatusText(status)
}
