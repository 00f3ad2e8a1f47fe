package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/AppHub/internal/port/cache"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyBody   = 1 << 20 // 1 MB
)

// idempotencyEntry stores a cached HTTP response.
type idempotencyEntry struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
}

// Idempotency returns middleware that deduplicates POST/PUT/PATCH/DELETE
// requests carrying an Idempotency-Key header. Responses below 500 are kept
// in store for ttl and replayed for the same account, method, path and key;
// server errors are not stored so the client can retry them.
func Idempotency(store cache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only apply to mutating methods
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(headerIdempotencyKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			storeKey := idempotencyStoreKey(AccountIDFromContext(ctx), r.Method, r.URL.Path, key)

			// Check store for an existing response
			if data, ok, err := store.Get(ctx, storeKey); err != nil {
				slog.WarnContext(ctx, "idempotency: lookup failed", "error", err)
			} else if ok {
				var cached idempotencyEntry
				if err := json.Unmarshal(data, &cached); err == nil {
					for k, vals := range cached.Headers {
						for _, v := range vals {
							w.Header().Add(k, v)
						}
					}
					w.Header().Set(headerReplayed, "true")
					w.WriteHeader(cached.StatusCode)
					_, _ = w.Write(cached.Body)
					return
				}
				slog.WarnContext(ctx, "idempotency: corrupt cache entry", "key", key)
			}

			// Cache miss: process request and capture response
			rec := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError || rec.body.Len() > maxIdempotencyBody {
				return
			}
			cached := idempotencyEntry{
				StatusCode: rec.statusCode,
				Headers:    w.Header().Clone(),
				Body:       rec.body.Bytes(),
			}
			data, err := json.Marshal(cached)
			if err != nil {
				return
			}
			if err := store.Set(ctx, storeKey, data, ttl); err != nil {
				slog.WarnContext(ctx, "idempotency: failed to store response", "key", key, "error", err)
			}
		})
	}
}

// idempotencyStoreKey hashes the request identity into a store-safe key.
func idempotencyStoreKey(accountID, method, path, key string) string {
	sum := sha256.Sum256([]byte(accountID + "\x00" + method + "\x00" + path + "\x00" + key))
	return cache.Key("idem", hex.EncodeToString(sum[:]))
}

// responseRecorder wraps http.ResponseWriter to capture the response.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
