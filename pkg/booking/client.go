// Package booking is a thin typed client for the booking backend's domain
// endpoints. Every call goes through the shared httpx.Client, so expired
// tokens are refreshed transparently.
package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aussiebroadwan/medibook/pkg/httpx"
)

type Client struct {
	http *httpx.Client
}

func New(h *httpx.Client) *Client {
	return &Client{http: h}
}

// Doctors lists doctors. The backend answers with either a bare array or
// {"doctors": [...]}.
func (c *Client) Doctors(ctx context.Context) ([]Doctor, error) {
	resp, err := c.http.Send(ctx, httpx.NewRequest(http.MethodGet, "/doctors"))
	if err != nil {
		return nil, err
	}
	return decodeList[Doctor](resp.Body, "doctors")
}

// Appointments lists the caller's appointments, bare or wrapped like
// Doctors.
func (c *Client) Appointments(ctx context.Context) ([]Appointment, error) {
	resp, err := c.http.Send(ctx, httpx.NewRequest(http.MethodGet, "/appointments"))
	if err != nil {
		return nil, err
	}
	return decodeList[Appointment](resp.Body, "appointments")
}

// CreateAppointment validates a and books it.
func (c *Client) CreateAppointment(ctx context.Context, a NewAppointment) (*Appointment, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	req, err := httpx.NewJSONRequest(http.MethodPost, "/appointments", a)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	var out Appointment
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelAppointment(ctx context.Context, id int) (*Message, error) {
	path := "/appointments/" + strconv.Itoa(id)
	return sendDecode[Message](ctx, c.http, httpx.NewRequest(http.MethodDelete, path))
}

// ProcessAudio uploads a recording to the voice assistant.
func (c *Client) ProcessAudio(ctx context.Context, filename string, audio io.Reader, language string) (*AudioReply, error) {
	req, err := httpx.NewMultipartRequest("/process-audio",
		map[string]string{"language": language},
		httpx.FilePart{Field: "audio", Filename: filename, Content: audio},
	)
	if err != nil {
		return nil, err
	}
	return sendDecode[AudioReply](ctx, c.http, req)
}

// ProcessText sends typed text to the voice assistant.
func (c *Client) ProcessText(ctx context.Context, text, language string) (*TextReply, error) {
	req, err := httpx.NewJSONRequest(http.MethodPost, "/api/transactions", map[string]string{
		"user-text": text,
		"language":  language,
	})
	if err != nil {
		return nil, err
	}
	return sendDecode[TextReply](ctx, c.http, req)
}

// Audio fetches a synthesised reply.
func (c *Client) Audio(ctx context.Context, id string) ([]byte, error) {
	req := httpx.NewRequest(http.MethodGet, "/get-audio/"+url.PathEscape(id))
	req.Header.Set("Accept", "audio/*")
	resp, err := c.http.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// CleanupAudio deletes a synthesised reply on the server.
func (c *Client) CleanupAudio(ctx context.Context, id string) error {
	_, err := c.http.Send(ctx, httpx.NewRequest(http.MethodDelete, "/cleanup/"+url.PathEscape(id)))
	return err
}

func (c *Client) CreateOrganisation(ctx context.Context, org NewOrganisation) (*OrganisationCreated, error) {
	req, err := httpx.NewJSONRequest(http.MethodPost, "/api/clients", org)
	if err != nil {
		return nil, err
	}
	return sendDecode[OrganisationCreated](ctx, c.http, req)
}

func (c *Client) OrganisationUsers(ctx context.Context, clientID string) (*OrganisationUsers, error) {
	path := "/api/clients/" + url.PathEscape(clientID) + "/users"
	return sendDecode[OrganisationUsers](ctx, c.http, httpx.NewRequest(http.MethodGet, path))
}

func (c *Client) UpdateDataUser(ctx context.Context, userID string, upd DataUserUpdate) (*DataUserUpdated, error) {
	req, err := httpx.NewJSONRequest(http.MethodPut, "/api/data-users/"+url.PathEscape(userID), upd)
	if err != nil {
		return nil, err
	}
	return sendDecode[DataUserUpdated](ctx, c.http, req)
}

func sendDecode[T any](ctx context.Context, h *httpx.Client, req *httpx.Request) (*T, error) {
	resp, err := h.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	var out T
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, fmt.Errorf("%s: %w", req, err)
	}
	return &out, nil
}

// decodeList accepts a bare JSON array or an object holding the array
// under key.
func decodeList[T any](body []byte, key string) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var out []T
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return out, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	raw, ok := wrapped[key]
	if !ok {
		return []T{}, nil
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
