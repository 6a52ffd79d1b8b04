// Package twitchapi contains the Twitch HTTP helpers the bot needs outside of
// IRC: broadcaster lookups on Helix with an app token, and the OAuth flows that
// keep the bot's chat token alive.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

const helixBaseURL = "https://api.twitch.tv/helix"

// ErrUserNotFound is returned when a login does not resolve to a user.
var ErrUserNotFound = errors.New("user not found")

// HelixClient performs app-token Helix lookups.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
}

// User is the subset of a Helix user the bot uses.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// GetUser resolves a login name. A 401 invalidates the cached app token and
// retries once.
func (hc *HelixClient) GetUser(ctx context.Context, login string) (*User, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	var body struct {
		Data []User `json:"data"`
	}
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var status int
		status, err = hc.getUsers(ctx, login, &body)
		if status == http.StatusUnauthorized && attempt == 0 {
			hc.AppTokenSource.Invalidate()
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, ErrUserNotFound
	}
	return &body.Data[0], nil
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	u, err := hc.GetUser(ctx, login)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func (hc *HelixClient) getUsers(ctx context.Context, login string, out any) (int, error) {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, helixBaseURL+"/users", nil)
	if err != nil {
		return 0, err
	}
	q := req.URL.Query()
	q.Set("login", login)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := httpClient(hc.HTTPClient).Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("helix users: %s", resp.Status)
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
}
