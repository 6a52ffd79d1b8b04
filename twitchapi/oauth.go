package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OAuth runs the user-token flows for the bot account: authorization code
// exchange, refresh and validation.
type OAuth struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       string
	HTTPClient   *http.Client
}

// Token is a user access token with its refresh token and expiry.
type Token struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	Expiry       time.Time
}

// AuthorizeURL constructs the user authorization URL for the code grant.
func (o *OAuth) AuthorizeURL(state string) (string, error) {
	if o.ClientID == "" || o.RedirectURI == "" {
		return "", errors.New("missing clientID or redirectURI")
	}
	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("client_id", o.ClientID)
	v.Set("redirect_uri", o.RedirectURI)
	if o.Scopes != "" {
		v.Set("scope", strings.Join(strings.Fields(strings.ReplaceAll(o.Scopes, ",", " ")), " "))
	}
	if state != "" {
		v.Set("state", state)
	}
	return idBaseURL + "/oauth2/authorize?" + v.Encode(), nil
}

// Exchange trades an authorization code for tokens.
func (o *OAuth) Exchange(ctx context.Context, code string) (*Token, error) {
	if o.ClientID == "" || o.ClientSecret == "" || code == "" || o.RedirectURI == "" {
		return nil, errors.New("missing required parameter for auth code exchange")
	}
	form := url.Values{}
	form.Set("client_id", o.ClientID)
	form.Set("client_secret", o.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", o.RedirectURI)
	var res tokenResponse
	if err := postForm(ctx, httpClient(o.HTTPClient), form, &res); err != nil {
		return nil, fmt.Errorf("twitch auth code exchange failed: %w", err)
	}
	return res.token(), nil
}

// Refresh exchanges a refresh token for a new access token. Twitch may rotate
// the refresh token; when it does not, the old one is kept.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if o.ClientID == "" || o.ClientSecret == "" || refreshToken == "" {
		return nil, errors.New("missing clientID/clientSecret/refreshToken")
	}
	form := url.Values{}
	form.Set("client_id", o.ClientID)
	form.Set("client_secret", o.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	var res tokenResponse
	if err := postForm(ctx, httpClient(o.HTTPClient), form, &res); err != nil {
		return nil, fmt.Errorf("twitch refresh failed: %w", err)
	}
	tok := res.token()
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

func (r tokenResponse) token() *Token {
	return &Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		Scope:        strings.Join(r.Scope, " "),
		Expiry:       ComputeExpiry(r.ExpiresIn),
	}
}

// Validation is the identity behind a user token.
type Validation struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int      `json:"expires_in"`
}

// Validate checks a user access token. An "oauth:" prefix is accepted.
func (o *OAuth) Validate(ctx context.Context, accessToken string) (*Validation, error) {
	accessToken = strings.TrimPrefix(accessToken, "oauth:")
	if accessToken == "" {
		return nil, errors.New("empty access token")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, idBaseURL+"/oauth2/validate", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)
	resp, err := httpClient(o.HTTPClient).Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitch token validation failed: %s", resp.Status)
	}
	var v Validation
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ComputeExpiry returns absolute expiry time from seconds, defaulting to +60m when unknown.
func ComputeExpiry(seconds int) time.Time {
	if seconds <= 0 {
		return time.Now().Add(60 * time.Minute)
	}
	return time.Now().Add(time.Duration(seconds) * time.Second)
}
