// Package server exposes the bot's HTTP surface: health probes, metrics,
// live session status, per-room memory, credential onboarding and an admin
// trigger for reconciliation. Every request carries a correlation id.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/neurobot/chat"
	"github.com/onnwee/neurobot/memory"
	"github.com/onnwee/neurobot/rooms"
	"github.com/onnwee/neurobot/telemetry"
	"github.com/onnwee/neurobot/twitchapi"
	"github.com/onnwee/neurobot/youtubeapi"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SessionManager is the part of chat.Manager the API needs.
type SessionManager interface {
	Sessions() []chat.Info
	Platforms() []string
	Tick(ctx context.Context) error
}

// HistoryReader reads a room's memory window.
type HistoryReader interface {
	Recent(ctx context.Context, platform, room string, limit int) ([]memory.Turn, error)
}

// RoomLister lists configured rooms.
type RoomLister interface {
	List(ctx context.Context) ([]rooms.Config, error)
}

// TokenSaver persists OAuth tokens (db.TokenStoreAdapter).
type TokenSaver interface {
	UpsertOAuthToken(ctx context.Context, provider, accessToken, refreshToken string, expiry time.Time, scope string) error
}

// Deps are the collaborators behind the handlers. Nil optional fields turn
// the matching endpoints into 503 responses.
type Deps struct {
	DB          Pinger
	Manager     SessionManager
	History     HistoryReader
	Rooms       RoomLister
	Tokens      TokenSaver
	TwitchOAuth *twitchapi.OAuth
	YouTube     *youtubeapi.Service

	AdminToken    string
	AdminUsername string
	AdminPassword string
}

// NewMux returns the HTTP handler with all routes.
// The provided context bounds the rate limiter's cleanup goroutine.
func NewMux(ctx context.Context, deps Deps) http.Handler {
	authCfg := newAuthConfig(deps.AdminUsername, deps.AdminPassword, deps.AdminToken)
	limiter := newIPRateLimiter(ctx, loadRateLimiterConfig())
	corsCfg := loadCORSConfig()

	h := NewHandlers(deps)
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.HandleFunc("GET /readyz", h.HandleReadyz)
	mux.HandleFunc("GET /status", h.HandleStatus)
	mux.HandleFunc("GET /rooms/{platform}/{room}/history", h.HandleRoomHistory)

	mux.HandleFunc("GET /auth/twitch/start", h.HandleTwitchOAuthStart)
	mux.Handle("GET /auth/twitch/callback", rateLimitMiddleware(http.HandlerFunc(h.HandleTwitchOAuthCallback), limiter))
	mux.HandleFunc("GET /auth/youtube/start", h.HandleYouTubeOAuthStart)
	mux.Handle("GET /auth/youtube/callback", rateLimitMiddleware(http.HandlerFunc(h.HandleYouTubeOAuthCallback), limiter))

	admin := func(fn http.HandlerFunc) http.Handler {
		return adminAuth(rateLimitMiddleware(fn, limiter), authCfg)
	}
	mux.Handle("POST /admin/reconcile", admin(h.HandleAdminReconcile))
	mux.Handle("GET /admin/rooms", admin(h.HandleAdminRooms))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, r.Method+" "+r.URL.Path, telemetry.HTTPAttrs(r.Method, r.URL.Path)...)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(rec, r.WithContext(ctx))
		telemetry.SetHTTPStatus(span, rec.statusCode)
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
