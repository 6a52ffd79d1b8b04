package llm

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CredentialTTL is how long resolved Cloudflare credentials are reused.
const CredentialTTL = 5 * time.Minute

// kv keys that override the environment at runtime.
const (
	KeyCFAccountID = "cfg:CF_ACCOUNT_ID"
	KeyCFAPIToken  = "cfg:CF_API_TOKEN"
)

// KVReader reads a runtime setting; "" means unset.
type KVReader func(ctx context.Context, key string) (string, error)

// Credentials resolves the Workers AI account id and token, preferring kv
// overrides over the static values and caching the result for ttl.
type Credentials struct {
	staticAccount string
	staticToken   string
	kv            KVReader
	ttl           time.Duration
	now           func() time.Time

	mu        sync.Mutex
	account   string
	token     string
	fetchedAt time.Time
}

// NewCredentials builds a resolver. kv may be nil.
func NewCredentials(account, token string, kv KVReader, ttl time.Duration) *Credentials {
	return &Credentials{staticAccount: account, staticToken: token, kv: kv, ttl: ttl, now: time.Now}
}

// Get returns the account id and token, or ErrNoCredentials.
func (c *Credentials) Get(ctx context.Context) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.result()
	}
	account, token := c.staticAccount, c.staticToken
	if c.kv != nil {
		if v, err := c.kv(ctx, KeyCFAccountID); err != nil {
			slog.Warn("read cf account override", slog.Any("err", err), slog.String("component", "llm"))
		} else if v != "" {
			account = v
		}
		if v, err := c.kv(ctx, KeyCFAPIToken); err != nil {
			slog.Warn("read cf token override", slog.Any("err", err), slog.String("component", "llm"))
		} else if v != "" {
			token = v
		}
	}
	c.account, c.token, c.fetchedAt = account, token, c.now()
	return c.result()
}

func (c *Credentials) result() (string, string, error) {
	if c.account == "" || c.token == "" {
		return "", "", ErrNoCredentials
	}
	return c.account, c.token, nil
}
