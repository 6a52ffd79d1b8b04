package twitchapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

func TestTokenSource_GetCached(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("unexpected form: %v %v", r.PostForm, err)
		}
		writeJSON(w, map[string]any{"access_token": "test-token-123", "expires_in": 3600})
	}))
	defer server.Close()

	ts := &TokenSource{ClientID: "c", ClientSecret: "s", HTTPClient: testClient(server)}
	for i := 0; i < 3; i++ {
		tok, err := ts.Get(context.Background())
		if err != nil || tok != "test-token-123" {
			t.Fatalf("Get() = %q, %v", tok, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 API call, got %d", calls.Load())
	}

	ts.Invalidate()
	if _, err := ts.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected refetch after Invalidate, got %d calls", calls.Load())
	}
}

func TestTokenSource_ShortLivedTokenRefetched(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, map[string]any{"access_token": "t", "expires_in": 30})
	}))
	defer server.Close()
	ts := &TokenSource{ClientID: "c", ClientSecret: "s", HTTPClient: testClient(server)}
	_, _ = ts.Get(context.Background())
	_, _ = ts.Get(context.Background())
	if calls.Load() != 2 {
		t.Errorf("token inside the one-minute buffer should be refetched, calls = %d", calls.Load())
	}
}

func TestTokenSource_Errors(t *testing.T) {
	if _, err := (&TokenSource{}).Get(context.Background()); err == nil {
		t.Error("expected error for missing credentials")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()
	ts := &TokenSource{ClientID: "c", ClientSecret: "s", HTTPClient: testClient(server)}
	if _, err := ts.Get(context.Background()); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestTokenSource_ConcurrentAccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, map[string]any{"access_token": "shared", "expires_in": 3600})
	}))
	defer server.Close()
	ts := &TokenSource{ClientID: "c", ClientSecret: "s", HTTPClient: testClient(server)}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tok, err := ts.Get(context.Background()); err != nil || tok != "shared" {
				t.Errorf("Get() = %q, %v", tok, err)
			}
		}()
	}
	wg.Wait()
	if calls.Load() != 1 {
		t.Errorf("concurrent Get should fetch once, got %d", calls.Load())
	}
}
