// Package llm talks to the text-generation backends the composer uses. Each
// backend turns a Request into a short reply; failures are plain errors.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNoCredentials is returned when the backend has no usable credentials.
	ErrNoCredentials = errors.New("llm credentials not configured")
	// ErrEmptyResponse is returned when the backend answered with no text.
	ErrEmptyResponse = errors.New("llm returned empty response")
)

// Meta describes where a prompt came from. Backends may pass it to the model.
type Meta struct {
	Platform string
	Room     string
	User     string
}

// Request is one generation call.
type Request struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
	Meta        Meta
}

// Generator produces text for a Request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Options selects and configures a backend.
type Options struct {
	Provider string // cloudflare | openai
	Timeout  time.Duration

	CFAccountID string
	CFAPIToken  string
	CFModel     string
	CFBaseURL   string
	// KV, when set, supplies runtime credential overrides.
	KV KVReader

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	HTTPClient *http.Client
}

// New builds the configured Generator, bounded by Options.Timeout.
func New(o Options) (Generator, error) {
	var g Generator
	switch strings.ToLower(strings.TrimSpace(o.Provider)) {
	case "", "cloudflare", "cf":
		g = &Cloudflare{
			Creds:      NewCredentials(o.CFAccountID, o.CFAPIToken, o.KV, CredentialTTL),
			Model:      o.CFModel,
			BaseURL:    o.CFBaseURL,
			HTTPClient: o.HTTPClient,
		}
	case "openai":
		g = &OpenAI{
			APIKey:     o.OpenAIKey,
			BaseURL:    o.OpenAIBaseURL,
			Model:      o.OpenAIModel,
			HTTPClient: o.HTTPClient,
		}
	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER %q", o.Provider)
	}
	return WithTimeout(g, o.Timeout), nil
}

type timeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

// WithTimeout bounds every call to g by d. A non-positive d returns g.
func WithTimeout(g Generator, d time.Duration) Generator {
	if d <= 0 {
		return g
	}
	return &timeoutGenerator{next: g, timeout: d}
}

func (t *timeoutGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Generate(ctx, req)
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}

// postJSON sends body and decodes the response into out. Non-2xx responses are
// errors carrying a bounded slice of the body.
func postJSON(ctx context.Context, hc *http.Client, url, bearer string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)
	resp, err := httpClient(hc).Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		snippet := string(raw)
		if len(snippet) > 300 {
			snippet = snippet[:300]
		}
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(snippet))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
