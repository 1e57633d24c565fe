package gateway

import (
	"context"
	"sync"
	"time"
)

// tokenExpirySlack is subtracted from a gateway's stated TTL so a token is
// never used right at its expiry edge.
const tokenExpirySlack = 30 * time.Second

// tokenSource caches a bearer token until shortly before the expiry the
// gateway stated. Safe for concurrent use.
type tokenSource struct {
	mu     sync.Mutex
	fetch  func(ctx context.Context) (token string, ttl time.Duration, err error)
	token  string
	expiry time.Time
	now    func() time.Time
}

func newTokenSource(fetch func(ctx context.Context) (string, time.Duration, error)) *tokenSource {
	return &tokenSource{fetch: fetch, now: time.Now}
}

// Token returns the cached token or fetches a fresh one.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Before(t.expiry) {
		return t.token, nil
	}

	token, ttl, err := t.fetch(ctx)
	if err != nil {
		return "", err
	}

	t.token = token
	t.expiry = t.now().Add(ttl - tokenExpirySlack)
	return token, nil
}

// Invalidate drops the cached token so the next call fetches a fresh one.
func (t *tokenSource) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.mu.Unlock()
}
