package server

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/neurobot/rooms"
	"github.com/onnwee/neurobot/telemetry"
)

// newOAuthState generates and records a one-time state value.
func (h *Handlers) newOAuthState(w http.ResponseWriter) (string, bool) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return "", false
	}
	st := hex.EncodeToString(b)
	if !h.addOAuthState(st, time.Now().Add(oauthStateTTL)) {
		http.Error(w, "too many pending authorizations", http.StatusServiceUnavailable)
		return "", false
	}
	return st, true
}

// callbackCode validates code and state on an OAuth callback.
func (h *Handlers) callbackCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return "", false
	}
	if !h.consumeOAuthState(st) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return "", false
	}
	return code, true
}

// HandleTwitchOAuthStart redirects the bot account's owner to Twitch consent.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.deps.TwitchOAuth == nil || h.deps.TwitchOAuth.ClientID == "" || h.deps.TwitchOAuth.RedirectURI == "" {
		http.Error(w, "oauth not configured (need TWITCH_CLIENT_ID + TWITCH_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	st, ok := h.newOAuthState(w)
	if !ok {
		return
	}
	authURL, err := h.deps.TwitchOAuth.AuthorizeURL(st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleTwitchOAuthCallback exchanges the code and stores the bot's chat token.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.deps.TwitchOAuth == nil || h.deps.Tokens == nil {
		http.Error(w, "oauth not configured", http.StatusBadRequest)
		return
	}
	code, ok := h.callbackCode(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	tok, err := h.deps.TwitchOAuth.Exchange(ctx, code)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Error("twitch code exchange", slog.Any("err", err))
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}
	if err := h.deps.Tokens.UpsertOAuthToken(ctx, rooms.Twitch, tok.AccessToken, tok.RefreshToken, tok.Expiry, tok.Scope); err != nil {
		telemetry.LoggerWithCorr(ctx).Error("persist twitch token", slog.Any("err", err))
		http.Error(w, "failed to store token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "scope": tok.Scope, "expiry": tok.Expiry})
}

// HandleYouTubeOAuthStart redirects to Google consent with offline access.
func (h *Handlers) HandleYouTubeOAuthStart(w http.ResponseWriter, r *http.Request) {
	if !h.deps.YouTube.Configured() {
		http.Error(w, "youtube oauth not configured", http.StatusBadRequest)
		return
	}
	st, ok := h.newOAuthState(w)
	if !ok {
		return
	}
	http.Redirect(w, r, h.deps.YouTube.AuthCodeURL(st), http.StatusFound)
}

// HandleYouTubeOAuthCallback exchanges the code; the service persists the token.
func (h *Handlers) HandleYouTubeOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if !h.deps.YouTube.Configured() {
		http.Error(w, "youtube oauth not configured", http.StatusBadRequest)
		return
	}
	code, ok := h.callbackCode(w, r)
	if !ok {
		return
	}
	tok, err := h.deps.YouTube.Exchange(r.Context(), code)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("youtube code exchange", slog.Any("err", err))
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "ok",
		"expiry":                tok.Expiry,
		"access_token_present":  tok.AccessToken != "",
		"refresh_token_present": tok.RefreshToken != "",
	})
}
