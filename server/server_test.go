package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/neurobot/chat"
	"github.com/onnwee/neurobot/memory"
	"github.com/onnwee/neurobot/rooms"
	"github.com/onnwee/neurobot/testutil"
	"github.com/onnwee/neurobot/twitchapi"
	"github.com/onnwee/neurobot/youtubeapi"
)

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type fakeManager struct {
	mu        sync.Mutex
	platforms []string
	sessions  []chat.Info
	tickErr   error
	ticks     int
}

func (m *fakeManager) Sessions() []chat.Info { return m.sessions }
func (m *fakeManager) Platforms() []string   { return m.platforms }
func (m *fakeManager) Tick(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
	return m.tickErr
}

type fakeRooms struct{ cfgs []rooms.Config }

func (f fakeRooms) List(context.Context) ([]rooms.Config, error) { return f.cfgs, nil }

type fakeTokens struct {
	provider, access, refresh, scope string
}

func (f *fakeTokens) UpsertOAuthToken(_ context.Context, provider, access, refresh string, _ time.Time, scope string) error {
	f.provider, f.access, f.refresh, f.scope = provider, access, refresh, scope
	return nil
}

func newTestMux(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewMux(ctx, deps)
}

func do(h http.Handler, method, target string, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for _, fn := range setup {
		fn(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name string
		db   Pinger
		want int
	}{
		{"ok", fakePinger{}, http.StatusOK},
		{"db down", fakePinger{err: errors.New("refused")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(newTestMux(t, Deps{DB: tt.db}), http.MethodGet, "/healthz")
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d, body=%s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		deps       Deps
		wantStatus int
		wantFailed string
	}{
		{"ready", Deps{DB: fakePinger{}, Manager: &fakeManager{platforms: []string{"twitch"}}}, http.StatusOK, ""},
		{"db down", Deps{DB: fakePinger{err: errors.New("refused")}, Manager: &fakeManager{platforms: []string{"twitch"}}}, http.StatusServiceUnavailable, "database"},
		{"no transports", Deps{DB: fakePinger{}, Manager: &fakeManager{}}, http.StatusServiceUnavailable, "transports"},
		{"no manager", Deps{DB: fakePinger{}}, http.StatusServiceUnavailable, "transports"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(newTestMux(t, tt.deps), http.MethodGet, "/readyz")
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d, body=%s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("expected Content-Type=application/json, got %q", ct)
			}
			var resp map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["failed_check"] != tt.wantFailed {
				t.Errorf("failed_check = %q, want %q", resp["failed_check"], tt.wantFailed)
			}
		})
	}
}

func TestStatusListsSessions(t *testing.T) {
	opened := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mgr := &fakeManager{
		platforms: []string{"twitch", "youtube"},
		sessions:  []chat.Info{{Platform: "twitch", Room: "streamer", State: "active", OpenedAt: opened}},
	}
	rr := do(newTestMux(t, Deps{Manager: mgr}), http.MethodGet, "/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Active   int         `json:"active"`
		Sessions []chat.Info `json:"sessions"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Active != 1 || resp.Sessions[0].Room != "streamer" || !resp.Sessions[0].OpenedAt.Equal(opened) {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRoomHistory(t *testing.T) {
	mem := memory.NewMemStore()
	ctx := context.Background()
	for i, msg := range []string{"раз", "два", "три"} {
		role := memory.RoleUser
		if i == 1 {
			role = memory.RoleAssistant
		}
		if err := mem.Append(ctx, memory.Turn{Platform: "twitch", Room: "streamer", Role: role, Username: "vasya", Message: msg}); err != nil {
			t.Fatal(err)
		}
	}
	h := newTestMux(t, Deps{History: mem})

	tests := []struct {
		name   string
		target string
		status int
		want   []string
	}{
		{"default window oldest first", "/rooms/twitch/streamer/history", http.StatusOK, []string{"раз", "два", "три"}},
		{"limit", "/rooms/twitch/streamer/history?limit=2", http.StatusOK, []string{"два", "три"}},
		{"handle normalized", "/rooms/Twitch/@Streamer/history", http.StatusOK, []string{"раз", "два", "три"}},
		{"unknown room is empty", "/rooms/youtube/other/history", http.StatusOK, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(h, http.MethodGet, tt.target)
			if rr.Code != tt.status {
				t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
			}
			var turns []memory.Turn
			if err := json.NewDecoder(rr.Body).Decode(&turns); err != nil {
				t.Fatal(err)
			}
			got := make([]string, 0, len(turns))
			for _, tu := range turns {
				got = append(got, tu.Message)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoomHistoryUnavailable(t *testing.T) {
	rr := do(newTestMux(t, Deps{}), http.MethodGet, "/rooms/twitch/x/history")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAdminReconcile(t *testing.T) {
	tests := []struct {
		name    string
		tickErr error
		token   string
		status  int
		ticks   int
	}{
		{"authorized", nil, "secret", http.StatusOK, 1},
		{"unauthorized", nil, "wrong", http.StatusUnauthorized, 0},
		{"tick error", errors.New("rooms table unavailable"), "secret", http.StatusBadGateway, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := &fakeManager{platforms: []string{"twitch"}, tickErr: tt.tickErr}
			h := newTestMux(t, Deps{Manager: mgr, AdminToken: "secret"})
			rr := do(h, http.MethodPost, "/admin/reconcile", func(r *http.Request) {
				r.Header.Set("X-Admin-Token", tt.token)
			})
			if rr.Code != tt.status {
				t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
			}
			if mgr.ticks != tt.ticks {
				t.Errorf("ticks = %d, want %d", mgr.ticks, tt.ticks)
			}
		})
	}
}

func TestAdminReconcileRequiresPost(t *testing.T) {
	rr := do(newTestMux(t, Deps{Manager: &fakeManager{}}), http.MethodGet, "/admin/reconcile")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAdminRooms(t *testing.T) {
	cfgs := []rooms.Config{{
		Target:  rooms.RoomTarget{Platform: rooms.Twitch, Handle: "streamer"},
		Enabled: true,
		Mode:    rooms.ModeMention,
		Prompt:  "Играю в Тарков.",
	}}
	rr := do(newTestMux(t, Deps{Rooms: fakeRooms{cfgs: cfgs}}), http.MethodGet, "/admin/rooms")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var out []roomView
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Handle != "streamer" || out[0].Mode != rooms.ModeMention.String() || out[0].Prompt != "Играю в Тарков." {
		t.Errorf("out = %+v", out)
	}
}

func TestCorrelationHeader(t *testing.T) {
	h := newTestMux(t, Deps{DB: fakePinger{}})
	rr := do(h, http.MethodGet, "/healthz", func(r *http.Request) {
		r.Header.Set("X-Correlation-ID", "abc-123")
	})
	if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("echoed corr = %q", got)
	}
	rr = do(h, http.MethodGet, "/healthz")
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected generated correlation id")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rr := do(newTestMux(t, Deps{}), http.MethodGet, "/metrics")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestTwitchOAuthFlow(t *testing.T) {
	idp := testutil.NewMockTwitchServer(t)
	idp.MockOAuthTokenResponse("the-code", "at", "rt", 3600, "chat:read", "chat:edit")

	tokens := &fakeTokens{}
	h := newTestMux(t, Deps{
		Tokens: tokens,
		TwitchOAuth: &twitchapi.OAuth{
			ClientID: "cid", ClientSecret: "secret", RedirectURI: "http://localhost/auth/twitch/callback",
			Scopes:     "chat:read chat:edit",
			HTTPClient: idp.Client(),
		},
	})

	rr := do(h, http.MethodGet, "/auth/twitch/start")
	if rr.Code != http.StatusFound {
		t.Fatalf("start status = %d", rr.Code)
	}
	loc, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	state := loc.Query().Get("state")
	if state == "" || loc.Query().Get("client_id") != "cid" {
		t.Fatalf("redirect = %s", loc)
	}

	rr = do(h, http.MethodGet, "/auth/twitch/callback?code=the-code&state=forged")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("forged state status = %d", rr.Code)
	}

	rr = do(h, http.MethodGet, "/auth/twitch/callback?code=the-code&state="+state)
	if rr.Code != http.StatusOK {
		t.Fatalf("callback status = %d body=%s", rr.Code, rr.Body.String())
	}
	if tokens.provider != "twitch" || tokens.access != "at" || tokens.refresh != "rt" || tokens.scope != "chat:read chat:edit" {
		t.Errorf("stored = %+v", tokens)
	}

	rr = do(h, http.MethodGet, "/auth/twitch/callback?code=the-code&state="+state)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("replayed state status = %d", rr.Code)
	}
}

func TestOAuthNotConfigured(t *testing.T) {
	h := newTestMux(t, Deps{YouTube: youtubeapi.New("", "", "", "", nil)})
	for _, path := range []string{"/auth/twitch/start", "/auth/youtube/start", "/auth/youtube/callback?code=x&state=y"} {
		if rr := do(h, http.MethodGet, path); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", path, rr.Code)
		}
	}
}

func TestYouTubeOAuthStart(t *testing.T) {
	yt := youtubeapi.New("cid", "secret", "http://localhost/auth/youtube/callback", "", nil)
	rr := do(newTestMux(t, Deps{YouTube: yt}), http.MethodGet, "/auth/youtube/start")
	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d", rr.Code)
	}
	loc := rr.Header().Get("Location")
	if !strings.Contains(loc, "access_type=offline") || !strings.Contains(loc, "state=") {
		t.Errorf("redirect = %s", loc)
	}
}

func TestOAuthStateStore(t *testing.T) {
	h := NewHandlers(Deps{})
	if !h.addOAuthState("expired", time.Now().Add(-time.Minute)) {
		t.Fatal("add failed")
	}
	if h.consumeOAuthState("expired") {
		t.Error("expired state accepted")
	}
	h.addOAuthState("live", time.Now().Add(time.Minute))
	if !h.consumeOAuthState("live") || h.consumeOAuthState("live") {
		t.Error("state must be single use")
	}
}

func TestStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Start(ctx, "127.0.0.1:0", http.NotFoundHandler()) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
