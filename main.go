// Command neurobot runs the chat bot:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and brings the schema up to date.
//   - Starts the room manager, which keeps one chat session per enabled room
//     and feeds every message through the reply pipeline.
//   - Keeps Twitch/YouTube OAuth tokens fresh in the background.
//   - Exposes /healthz, /readyz, /status, /metrics and the admin endpoints.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/onnwee/neurobot/chat"
	"github.com/onnwee/neurobot/config"
	"github.com/onnwee/neurobot/db"
	"github.com/onnwee/neurobot/llm"
	"github.com/onnwee/neurobot/memory"
	"github.com/onnwee/neurobot/oauth"
	"github.com/onnwee/neurobot/policy"
	"github.com/onnwee/neurobot/reply"
	"github.com/onnwee/neurobot/rooms"
	"github.com/onnwee/neurobot/server"
	"github.com/onnwee/neurobot/telemetry"
	"github.com/onnwee/neurobot/twitchapi"
	"github.com/onnwee/neurobot/youtubeapi"
)

// memoryBackend is both the conversation store and the audit log.
type memoryBackend interface {
	memory.Store
	memory.AuditLog
}

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdown, err := telemetry.InitTracing("neurobot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Setup(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens := &db.TokenStoreAdapter{DB: database}
	roomStore := rooms.NewStore(database)

	var mem memoryBackend
	switch cfg.MemoryBackend {
	case "memory":
		slog.Warn("conversation memory is in-process and will not survive restarts", slog.String("component", "memory"))
		mem = memory.NewMemStore()
	default:
		mem = memory.NewPGStore(database)
	}

	gen, err := llm.New(llm.Options{
		Provider:    cfg.AIProvider,
		Timeout:     cfg.AITimeout,
		CFAccountID: cfg.CFAccountID,
		CFAPIToken:  cfg.CFAPIToken,
		CFModel:     cfg.CFModel,
		KV: func(ctx context.Context, key string) (string, error) {
			return db.KVGet(ctx, database, key)
		},
		OpenAIKey:     cfg.OpenAIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIModel:   cfg.OpenAIModel,
	})
	if err != nil {
		slog.Error("generative backend setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	pipeline := &chat.Pipeline{
		Configs:  roomStore,
		Policy:   policy.NewEngine(cfg.BotName, cfg.BotMention, cfg.Blocklist),
		Composer: reply.New(mem, gen),
		Memory:   mem,
		Audit:    mem,
		BotName:  cfg.BotName,
	}

	twitchOAuth := &twitchapi.OAuth{
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
		RedirectURI:  cfg.TwitchRedirectURI,
		Scopes:       cfg.TwitchScopes,
	}
	yt := youtubeapi.New(cfg.YTClientID, cfg.YTClientSecret, cfg.YTRedirectURI, cfg.YTScopes, tokens)

	var dialers []chat.Dialer
	if cfg.HasPlatform(rooms.Twitch) {
		if err := cfg.TwitchReady(); err != nil {
			slog.Warn("twitch transport disabled", slog.Any("err", err))
		} else {
			dialers = append(dialers, newTwitchDialer(cfg, database))
			if cfg.TwitchOAuthToken != "" {
				go checkTwitchIdentity(ctx, twitchOAuth, cfg.TwitchOAuthToken, cfg.TwitchBotUsername)
			}
		}
	}
	if cfg.HasPlatform(rooms.YouTube) {
		if err := cfg.YouTubeReady(); err != nil {
			slog.Warn("youtube transport disabled", slog.Any("err", err))
		} else {
			dialers = append(dialers, &chat.YouTubeDialer{
				Client: func(ctx context.Context) (chat.YouTubeAPI, error) {
					lc, err := yt.LiveChat(ctx)
					if err != nil {
						return nil, err
					}
					return lc, nil
				},
			})
		}
	}

	opts := chat.DefaultSessionOptions()
	opts.QueueSize = cfg.QueueSize
	opts.SendRate = rate.Limit(cfg.SendRate)
	opts.SendBurst = cfg.SendBurst
	opts.Announce = cfg.Announce
	manager := chat.NewManager(roomStore, pipeline.Handler(), opts, dialers...)
	if len(dialers) == 0 {
		slog.Warn("no chat transport configured; the bot will not join any room")
	}
	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		manager.Run(ctx, cfg.ReconcileInterval)
	}()

	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		oauth.StartRefresher(ctx, tokens, rooms.Twitch, 5*time.Minute, 15*time.Minute, func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
			tok, err := twitchOAuth.Refresh(rctx, refreshToken)
			if err != nil {
				return "", "", time.Time{}, "", err
			}
			return tok.AccessToken, tok.RefreshToken, tok.Expiry, tok.Scope, nil
		})
	}
	if yt.Configured() {
		oauth.StartRefresher(ctx, tokens, youtubeapi.Provider, 10*time.Minute, 20*time.Minute, yt.Refresh)
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	mux := server.NewMux(ctx, server.Deps{
		DB:            database,
		Manager:       manager,
		History:       mem,
		Rooms:         roomStore,
		Tokens:        tokens,
		TwitchOAuth:   twitchOAuth,
		YouTube:       yt,
		AdminToken:    cfg.AdminToken,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
	})
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, mux); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	<-managerDone
}

// newTwitchDialer prefers TWITCH_OAUTH_TOKEN and falls back to the token
// stored by the /auth/twitch flow.
func newTwitchDialer(cfg *config.Config, database *sql.DB) *chat.TwitchDialer {
	d := &chat.TwitchDialer{
		Username: cfg.TwitchBotUsername,
		Token: func(ctx context.Context) (string, error) {
			if cfg.TwitchOAuthToken != "" {
				return cfg.TwitchOAuthToken, nil
			}
			access, _, _, _, err := db.GetOAuthToken(ctx, database, rooms.Twitch)
			return access, err
		},
		Mark: func(ctx context.Context, key string) (bool, error) {
			return db.MarkOnce(ctx, database, key)
		},
	}
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		d.Helix = &twitchapi.HelixClient{
			AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
			ClientID:       cfg.TwitchClientID,
		}
	} else {
		slog.Warn("TWITCH_CLIENT_ID/SECRET missing; join handshake will report failure", slog.String("component", "twitch"))
	}
	return d
}

// checkTwitchIdentity warns when the configured chat token belongs to an
// account other than the bot's, which makes IRC logins fail.
func checkTwitchIdentity(ctx context.Context, o *twitchapi.OAuth, token, username string) {
	logger := slog.Default().With(slog.String("component", "twitch"))
	vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	v, err := o.Validate(vctx, token)
	if err != nil {
		logger.Warn("twitch token validation failed", slog.Any("err", err))
		return
	}
	if !strings.EqualFold(v.Login, username) {
		logger.Warn("TWITCH_OAUTH_TOKEN belongs to another account",
			slog.String("token_login", v.Login), slog.String("bot_username", username))
		return
	}
	logger.Info("twitch token validated", slog.String("login", v.Login), slog.Int("expires_in", v.ExpiresIn))
}
