package httpx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// Request is an outbound API call. The body is buffered so the call can be
// replayed after a token refresh.
type Request struct {
	Method string
	Path   string // relative to the client's base URL, e.g. "/doctors"
	Query  url.Values
	Header http.Header
	Body   []byte

	// SkipAuth sends the request without the stored access token. A 401 on
	// such a request is never recovered.
	SkipAuth bool

	retried bool
}

// NewRequest returns a bodyless request.
func NewRequest(method, path string) *Request {
	return &Request{Method: method, Path: path, Header: make(http.Header)}
}

// NewJSONRequest encodes v as the request body.
func NewJSONRequest(method, path string, v any) (*Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
	}
	req := NewRequest(method, path)
	req.Header.Set("Content-Type", "application/json")
	req.Body = body
	return req, nil
}

// FilePart is a file attached to a multipart request.
type FilePart struct {
	Field    string
	Filename string
	Content  io.Reader
}

// NewMultipartRequest builds a multipart/form-data POST carrying fields and
// the given files.
func NewMultipartRequest(path string, fields map[string]string, files ...FilePart) (*Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req := NewRequest(http.MethodPost, path)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Body = buf.Bytes()
	return req, nil
}

// Retried reports whether the request has already been replayed once after
// a 401. Such a request is never replayed again.
func (r *Request) Retried() bool { return r.retried }

func (r *Request) String() string { return r.Method + " " + r.Path }

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return fmt.Errorf("decode response: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
