package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/medibook/pkg/httpx"
)

// Client calls the backend's credential endpoints. None of them carry the
// stored access token, so a 401 here never reaches the Coordinator.
type Client struct {
	http *httpx.Client
}

// NewClient wraps the shared HTTP client.
func NewClient(h *httpx.Client) *Client {
	return &Client{http: h}
}

// Login exchanges a username and password for a token pair.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	req, err := httpx.NewJSONRequest(http.MethodPost, "/login", creds)
	if err != nil {
		return nil, err
	}
	req.SkipAuth = true

	resp, err := c.http.Send(ctx, req)
	if err != nil {
		return nil, credentialError(err)
	}

	var out LoginResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return nil, fmt.Errorf("login: response is missing tokens")
	}
	return &out, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, reg Registration) (*RegisterResponse, error) {
	req, err := httpx.NewJSONRequest(http.MethodPost, "/register", reg)
	if err != nil {
		return nil, err
	}
	req.SkipAuth = true

	resp, err := c.http.Send(ctx, req)
	if err != nil {
		return nil, credentialError(err)
	}

	var out RegisterResponse
	if len(resp.Body) > 0 {
		if err := resp.DecodeJSON(&out); err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
	}
	return &out, nil
}

// credentialError maps a rejected login or registration to
// ErrInvalidCredentials, keeping the server's message.
func credentialError(err error) error {
	var httpErr *httpx.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	switch httpErr.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, httpErr.Message)
	}
	return err
}
