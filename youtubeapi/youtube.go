// Package youtubeapi wraps the Google OAuth2 config and the YouTube Data API
// calls the bot needs to take part in live chat: finding a channel's active
// chat, reading and posting messages, and subscribing to the channel. Tokens
// are persisted through TokenStore so they survive restarts and refreshes.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// Provider is the oauth_tokens key for the bot's YouTube credentials.
const Provider = "youtube"

// DefaultScopes allow reading and posting live chat and managing subscriptions.
const DefaultScopes = "https://www.googleapis.com/auth/youtube.force-ssl"

// ErrNoToken is returned when no YouTube credentials have been stored yet.
var ErrNoToken = errors.New("no youtube token stored")

// TokenStore persists OAuth tokens by provider.
type TokenStore interface {
	UpsertOAuthToken(ctx context.Context, provider, accessToken, refreshToken string, expiry time.Time, scope string) error
	GetOAuthToken(ctx context.Context, provider string) (accessToken, refreshToken string, expiry time.Time, scope string, err error)
}

// Service owns the OAuth config and hands out authorized API clients.
type Service struct {
	store TokenStore
	oauth *oauth2.Config
}

// New builds a Service. scopes may be comma or space separated; empty means
// DefaultScopes.
func New(clientID, clientSecret, redirectURI, scopes string, ts TokenStore) *Service {
	if strings.TrimSpace(scopes) == "" {
		scopes = DefaultScopes
	}
	return &Service{
		store: ts,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURI,
			Scopes:       strings.Fields(strings.ReplaceAll(scopes, ",", " ")),
		},
	}
}

// Configured reports whether client credentials are present.
func (s *Service) Configured() bool {
	return s != nil && s.oauth.ClientID != "" && s.oauth.ClientSecret != ""
}

// AuthCodeURL returns the consent URL; offline access yields a refresh token.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens and stores them.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("youtube code exchange: %w", err)
	}
	if err := s.store.UpsertOAuthToken(ctx, Provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, strings.Join(s.oauth.Scopes, " ")); err != nil {
		return nil, fmt.Errorf("persist youtube token: %w", err)
	}
	return tok, nil
}

// Refresh exchanges refreshToken for a new access token. Its signature matches
// oauth.RefreshFunc.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
	tok, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", "", time.Time{}, "", fmt.Errorf("youtube refresh: %w", err)
	}
	return tok.AccessToken, tok.RefreshToken, tok.Expiry, "", nil
}

// token loads the stored token, refreshing and persisting it when it is about
// to expire.
func (s *Service) token(ctx context.Context) (*oauth2.Token, error) {
	access, refresh, expiry, scope, err := s.store.GetOAuthToken(ctx, Provider)
	if err != nil {
		return nil, err
	}
	if access == "" && refresh == "" {
		return nil, ErrNoToken
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: expiry, TokenType: "Bearer"}
	if time.Until(expiry) > 2*time.Minute {
		return tok, nil
	}
	newTok, err := s.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return tok, fmt.Errorf("youtube token refresh: %w", err)
	}
	if newTok.RefreshToken == "" {
		newTok.RefreshToken = refresh
	}
	if err := s.store.UpsertOAuthToken(ctx, Provider, newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, scope); err != nil {
		return newTok, fmt.Errorf("persist youtube token: %w", err)
	}
	return newTok, nil
}

// Client returns an authorized YouTube Data API client.
func (s *Service) Client(ctx context.Context) (*yt.Service, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	// The HTTP client outlives ctx, which may be a short dial context.
	httpClient := s.oauth.Client(context.WithoutCancel(ctx), tok)
	return yt.NewService(ctx, option.WithHTTPClient(httpClient))
}

// LiveChat returns a LiveChat bound to a freshly authorized client.
func (s *Service) LiveChat(ctx context.Context) (*LiveChat, error) {
	svc, err := s.Client(ctx)
	if err != nil {
		return nil, err
	}
	return &LiveChat{svc: svc}, nil
}
