package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fxmarket/forex-marketplace/internal/api/problem"
	"github.com/fxmarket/forex-marketplace/internal/observability"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IdempotencyStore keeps one record per Idempotency-Key in redis. A reserved
// key without a response marks a request still in flight.
type IdempotencyStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewIdempotencyStore(client redis.Cmdable, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

type idempotencyRecord struct {
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (rec *idempotencyRecord) completed() bool { return rec.Status != 0 }

func idempotencyKey(key string) string { return "idempotency:" + key }

// reserve claims the key. It returns the existing record when another request
// already holds it.
func (s *IdempotencyStore) reserve(ctx context.Context, key, reqHash string) (bool, *idempotencyRecord, error) {
	raw, err := json.Marshal(idempotencyRecord{RequestHash: reqHash})
	if err != nil {
		return false, nil, err
	}
	ok, err := s.client.SetNX(ctx, idempotencyKey(key), raw, s.ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, nil, nil
	}
	rec, err := s.lookup(ctx, key)
	return false, rec, err
}

func (s *IdempotencyStore) lookup(ctx context.Context, key string) (*idempotencyRecord, error) {
	raw, err := s.client.Get(ctx, idempotencyKey(key)).Bytes()
	if err != nil {
		return nil, err
	}
	rec := &idempotencyRecord{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *IdempotencyStore) finalize(ctx context.Context, key string, rec *idempotencyRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, idempotencyKey(key), raw, s.ttl).Err()
}

func (s *IdempotencyStore) release(ctx context.Context, key string) {
	_ = s.client.Del(ctx, idempotencyKey(key)).Err()
}

// IdempotencyMiddleware enforces the Idempotency-Key contract for mutating requests.
func IdempotencyMiddleware(store *IdempotencyStore, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				observability.IncrementIdempotencyEvent("missing_key")
				problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/missing-key"), http.StatusText(http.StatusBadRequest), "Idempotency-Key header is required")
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), http.StatusText(http.StatusBadRequest), "Failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			reqHash := hashRequest(r.Method, r.URL.Path, bodyBytes)
			reserved, existing, err := store.reserve(r.Context(), key, reqHash)
			if err != nil && !errors.Is(err, redis.Nil) {
				observability.IncrementIdempotencyEvent("reserve_error")
				logger.Error("idempotency reserve failed", zap.Error(err))
				problem.Write(w, r, http.StatusInternalServerError, problem.Type("idempotency/unavailable"), http.StatusText(http.StatusInternalServerError), "idempotency unavailable")
				return
			}
			if !reserved && existing != nil {
				if existing.RequestHash != reqHash {
					observability.IncrementIdempotencyEvent("hash_mismatch")
					problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/key-conflict"), http.StatusText(http.StatusConflict), "conflicting idempotency key")
					return
				}
				if !existing.completed() {
					observability.IncrementIdempotencyEvent("in_progress_conflict")
					problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/in-progress"), http.StatusText(http.StatusConflict), "request with this key is still processing")
					return
				}
				observability.IncrementIdempotencyEvent("replay")
				w.Header().Set("Content-Type", existing.ContentType)
				w.Header().Set("X-Idempotent-Replay", "true")
				w.WriteHeader(existing.Status)
				_, _ = w.Write(existing.Body)
				return
			}
			observability.IncrementIdempotencyEvent("reserved")

			recorder := &bodyRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)

			if recorder.status == 0 {
				recorder.status = http.StatusOK
			}
			// 5xx responses do not burn the key; the client may retry.
			if recorder.status >= http.StatusInternalServerError {
				store.release(r.Context(), key)
				observability.IncrementIdempotencyEvent("released")
				return
			}

			contentType := recorder.Header().Get("Content-Type")
			if contentType == "" {
				contentType = "application/json"
			}
			rec := &idempotencyRecord{
				RequestHash: reqHash,
				Status:      recorder.status,
				ContentType: contentType,
				Body:        recorder.body.Bytes(),
			}
			if err := store.finalize(r.Context(), key, rec); err != nil {
				observability.IncrementIdempotencyEvent("finalize_error")
				logger.Warn("idempotency finalize failed", zap.Error(err), zap.String("key", key))
			} else {
				observability.IncrementIdempotencyEvent("finalized")
			}
		})
	}
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.Sum256(append([]byte(method+"|"+path+"|"), body...))
	return hex.EncodeToString(sum[:])
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (br *bodyRecorder) WriteHeader(code int) {
	br.status = code
	br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	if br.status == 0 {
		br.status = http.StatusOK
	}
	br.body.Write(b)
	return br.ResponseWriter.Write(b)
}
