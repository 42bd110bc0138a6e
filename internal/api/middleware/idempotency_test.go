package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newIdempotencyFixture(t *testing.T) *IdempotencyStore {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewIdempotencyStore(client, time.Hour)
}

func TestIdempotencyRequiresKey(t *testing.T) {
	store := newIdempotencyFixture(t)
	calls := 0
	h := IdempotencyMiddleware(store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, calls)
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store := newIdempotencyFixture(t)
	calls := 0
	h := IdempotencyMiddleware(store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"abc"}`))
	}))

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{"amount":"10"}`))
		req.Header.Set("Idempotency-Key", "key-1")
		return req
	}

	first := httptest.NewRecorder()
	h.ServeHTTP(first, newReq())
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, 1, calls)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, newReq())
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, `{"id":"abc"}`, second.Body.String())
	require.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))
	require.Equal(t, 1, calls, "replay must not re-execute the handler")
}

func TestIdempotencyRejectsReusedKeyWithDifferentBody(t *testing.T) {
	store := newIdempotencyFixture(t)
	h := IdempotencyMiddleware(store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{"amount":"10"}`))
	req.Header.Set("Idempotency-Key", "key-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	other := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{"amount":"99"}`))
	other.Header.Set("Idempotency-Key", "key-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, other)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newIdempotencyFixture(t)
	calls := 0
	h := IdempotencyMiddleware(store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "key-1")
		return req
	}

	first := httptest.NewRecorder()
	h.ServeHTTP(first, newReq())
	require.Equal(t, http.StatusInternalServerError, first.Code)

	// The failed attempt did not burn the key.
	second := httptest.NewRecorder()
	h.ServeHTTP(second, newReq())
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, 2, calls)
}
