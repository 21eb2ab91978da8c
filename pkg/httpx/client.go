// Package httpx is the shared HTTP client core. Every API call goes through
// Client.Send, which signs requests with the stored access token and hands
// 401 responses to a Recoverer for a single replay.
package httpx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/medibook/pkg/idx"
)

const (
	DefaultTimeout = 30 * time.Second

	// maxResponseBody caps how much of a response is buffered.
	maxResponseBody = 16 << 20
)

// TokenSource supplies the access token attached to outgoing requests. It is
// read on every send and must not block on I/O.
type TokenSource interface {
	AccessToken() string
}

// Recoverer is consulted when an authenticated request gets a 401. sentToken
// is the token the request carried. It returns the token to replay with.
type Recoverer interface {
	RecoverUnauthorized(ctx context.Context, req *Request, sentToken string) (string, error)
}

// RequestHook runs before each attempt is sent.
type RequestHook func(ctx context.Context, req *http.Request)

// ResponseHook runs after each attempt. resp is nil when err is set.
type ResponseHook func(ctx context.Context, req *http.Request, resp *http.Response, elapsed time.Duration, err error)

type Options struct {
	BaseURL string

	// HTTPClient defaults to a client without its own timeout; Timeout
	// bounds each attempt instead.
	HTTPClient *http.Client
	Timeout    time.Duration

	Tokens    TokenSource
	Recoverer Recoverer
	Limiter   *RateLimiter

	RequestHooks  []RequestHook
	ResponseHooks []ResponseHook

	UserAgent string
	Logger    *slog.Logger
}

// Client sends API requests. It is safe for concurrent use.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration

	tokens    TokenSource
	recoverer Recoverer
	limiter   *RateLimiter

	requestHooks  []RequestHook
	responseHooks []ResponseHook

	userAgent string
	logger    *slog.Logger
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", opts.BaseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: missing host", opts.BaseURL)
	}

	c := &Client{
		base:          strings.TrimRight(opts.BaseURL, "/"),
		http:          opts.HTTPClient,
		timeout:       opts.Timeout,
		tokens:        opts.Tokens,
		recoverer:     opts.Recoverer,
		limiter:       opts.Limiter,
		requestHooks:  opts.RequestHooks,
		responseHooks: opts.ResponseHooks,
		userAgent:     opts.UserAgent,
		logger:        opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.base }

// SetRecoverer installs the 401 handler. The coordinator needs the client to
// reach the refresh endpoint, so it is wired after construction.
func (c *Client) SetRecoverer(r Recoverer) { c.recoverer = r }

// Send performs req. A 2xx response is returned as is; anything else is an
// *HTTPError, and a call that got no response is a *NetworkError.
//
// A 401 on an authenticated request that has not been retried is handed to
// the Recoverer, and the request is replayed exactly once with the token it
// returns. Nothing else is retried. A Request may be sent again; each Send
// gets its own recovery.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	req.retried = false
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", idx.Request().String())
	}

	token := ""
	if !req.SkipAuth && c.tokens != nil {
		token = c.tokens.AccessToken()
	}

	resp, err := c.attempt(ctx, req, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.canRecover(req) {
		c.logger.DebugContext(ctx, "request unauthorized, recovering",
			"op", req.String(), "req_id", req.Header.Get("X-Request-ID"))

		fresh, err := c.recoverer.RecoverUnauthorized(ctx, req, token)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, &NetworkError{Op: req.String(), Err: err}
			}
			return nil, fmt.Errorf("%s: %w", req, err)
		}

		req.retried = true
		resp, err = c.attempt(ctx, req, fresh)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError(req.String(), resp)
	}
	return resp, nil
}

func (c *Client) canRecover(req *Request) bool {
	return c.recoverer != nil && !req.SkipAuth && !req.retried
}

// attempt performs one round trip with the given bearer token.
func (c *Client) attempt(ctx context.Context, req *Request, token string) (*Response, error) {
	op := req.String()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, req); err != nil {
			return nil, &NetworkError{Op: op, Err: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	hr, err := http.NewRequestWithContext(ctx, req.Method, c.url(req), body)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}
	for k, vs := range req.Header {
		hr.Header[k] = append([]string(nil), vs...)
	}
	if hr.Header.Get("Accept") == "" {
		hr.Header.Set("Accept", "application/json")
	}
	if c.userAgent != "" {
		hr.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		hr.Header.Set("Authorization", "Bearer "+token)
	}

	for _, hook := range c.requestHooks {
		hook(ctx, hr)
	}

	start := time.Now()
	res, err := c.http.Do(hr)
	if err != nil {
		c.after(ctx, hr, nil, time.Since(start), err)
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	c.after(ctx, hr, res, time.Since(start), err)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: data}, nil
}

func (c *Client) after(ctx context.Context, hr *http.Request, res *http.Response, elapsed time.Duration, err error) {
	for _, hook := range c.responseHooks {
		hook(ctx, hr, res, elapsed, err)
	}
}

func (c *Client) url(req *Request) string {
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.base + path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}
