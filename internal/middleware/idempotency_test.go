package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokodigital/storefront-payments/internal/repository/postgres"
)

type mockIdempotencyStore struct {
	GetFunc func(ctx context.Context, key string) (*postgres.IdempotencyEntry, error)
	SetFunc func(ctx context.Context, entry *postgres.IdempotencyEntry) error

	entries map[string]*postgres.IdempotencyEntry
}

func newMockIdempotencyStore() *mockIdempotencyStore {
	return &mockIdempotencyStore{entries: map[string]*postgres.IdempotencyEntry{}}
}

func (m *mockIdempotencyStore) Get(ctx context.Context, key string) (*postgres.IdempotencyEntry, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return m.entries[key], nil
}

func (m *mockIdempotencyStore) Set(ctx context.Context, entry *postgres.IdempotencyEntry) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, entry)
	}
	m.entries[entry.Key] = entry
	return nil
}

func countingHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"tracking_id":"t1"}`))
	})
}

func TestIdempotency_StoresAndReplays(t *testing.T) {
	store := newMockIdempotencyStore()
	calls := 0
	handler := Idempotency(store, time.Hour, zerolog.Nop())(countingHandler(&calls))

	req := httptest.NewRequest("POST", "/payments/initiate", nil)
	req.Header.Set("Idempotency-Key", "key-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, calls)
	require.Contains(t, store.entries, "key-1")

	// second request with the same key replays without re-running the handler
	req = httptest.NewRequest("POST", "/payments/initiate", nil)
	req.Header.Set("Idempotency-Key", "key-1")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, `{"tracking_id":"t1"}`, w.Body.String())
	assert.Equal(t, "true", w.Header().Get("X-Idempotency-Replayed"))
	assert.Equal(t, 1, calls)
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	store := newMockIdempotencyStore()
	calls := 0
	handler := Idempotency(store, time.Hour, zerolog.Nop())(countingHandler(&calls))

	for range 2 {
		req := httptest.NewRequest("POST", "/payments/initiate", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_SetFailureLogged(t *testing.T) {
	store := newMockIdempotencyStore()
	store.SetFunc = func(ctx context.Context, entry *postgres.IdempotencyEntry) error {
		return errors.New("connection refused")
	}

	var logBuf bytes.Buffer
	logger := zerolog.New(&logBuf)

	calls := 0
	handler := Idempotency(store, time.Hour, logger)(countingHandler(&calls))

	req := httptest.NewRequest("POST", "/payments/initiate", nil)
	req.Header.Set("Idempotency-Key", "key-2")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// response still succeeds, but the degraded replay protection is logged
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, logBuf.String(), "Failed to store idempotency entry")
	assert.Contains(t, logBuf.String(), "key-2")
	assert.Contains(t, logBuf.String(), `"level":"warn"`)
}

func TestIdempotency_ServerErrorsNotStored(t *testing.T) {
	store := newMockIdempotencyStore()
	handler := Idempotency(store, time.Hour, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest("POST", "/payments/initiate", nil)
	req.Header.Set("Idempotency-Key", "key-3")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// a 5xx must stay retryable
	assert.Empty(t, store.entries)
}
