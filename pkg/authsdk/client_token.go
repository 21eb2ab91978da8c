package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/medibook/pkg/httpx"
)

// Refresh exchanges a refresh token for a new access token. The refresh
// token is sent as the bearer credential.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	req := httpx.NewRequest(http.MethodPost, "/refresh")
	req.SkipAuth = true
	req.Header.Set("Authorization", "Bearer "+refreshToken)

	resp, err := c.http.Send(ctx, req)
	if err != nil {
		return "", err
	}

	var out RefreshResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return "", fmt.Errorf("refresh: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("refresh: response has no access token")
	}
	return out.AccessToken, nil
}
