// Package oauth keeps the bot's stored provider tokens fresh. Tokens live in
// the oauth_tokens table (encrypted when ENCRYPTION_KEY is set); a jittered
// loop refreshes each one when its expiry falls within a window.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

// RefreshFunc performs provider-specific refresh and returns (access, refresh, expiry, scope)
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// TokenStore reads and writes one token row per provider.
type TokenStore interface {
	GetOAuthToken(ctx context.Context, provider string) (accessToken, refreshToken string, expiry time.Time, scope string, err error)
	UpsertOAuthToken(ctx context.Context, provider, accessToken, refreshToken string, expiry time.Time, scope string) error
}

// RefreshOnce refreshes provider's token if it expires within window. It
// reports whether a refresh happened. A missing row or refresh token is not
// an error.
func RefreshOnce(ctx context.Context, store TokenStore, provider string, window time.Duration, fn RefreshFunc) (bool, error) {
	_, rt, exp, scope, err := store.GetOAuthToken(ctx, provider)
	if err != nil {
		return false, fmt.Errorf("load %s token: %w", provider, err)
	}
	if rt == "" {
		return false, nil
	}
	if !exp.IsZero() && time.Until(exp) > window {
		return false, nil
	}
	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	newAT, newRT, newExp, newScope, err := fn(ctx2, rt)
	cancel()
	if err != nil {
		return false, fmt.Errorf("refresh %s token: %w", provider, err)
	}
	if newAT == "" {
		return false, errors.New("refresh returned empty access token")
	}
	if newRT == "" {
		newRT = rt
	}
	if newScope == "" {
		newScope = scope
	}
	if err := store.UpsertOAuthToken(ctx, provider, newAT, newRT, newExp, strings.TrimSpace(newScope)); err != nil {
		return false, fmt.Errorf("persist %s token: %w", provider, err)
	}
	return true, nil
}

// StartRefresher launches a goroutine that periodically checks an oauth token row and refreshes it.
// provider: key in oauth_tokens table.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, store TokenStore, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	logger := slog.Default().With(slog.String("component", "oauth_refresher"), slog.String("provider", provider))
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval/2) + 1))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// Per-iteration jitter of +/-20% of interval.
			jitterRange := int64(interval/5) + 1
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			refreshed, err := RefreshOnce(ctx, store, provider, window, fn)
			switch {
			case err != nil && ctx.Err() == nil:
				logger.Warn("token refresh failed", slog.Any("err", err))
			case refreshed:
				logger.Info("token refreshed")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
		}
	}()
}
