package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/trendforge/ingest/internal/app/storage"
)

// idempotentRecord is what gets cached under an Idempotency-Key: the
// response this service gave the first time that key was seen.
type idempotentRecord struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

const idempotencyKeyPrefix = "idempotency:"

// idempotencyMiddleware replays the cached response for a request carrying
// an Idempotency-Key header seen within the last ttl, per §6's "callers may
// supply an Idempotency-Key header that the service remembers for 24
// hours" requirement. Only non-GET requests are eligible; GETs are already
// naturally idempotent.
func idempotencyMiddleware(cache storage.CacheStore, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			cacheKey := idempotencyKeyPrefix + key
			if cached, ok, err := cache.Get(r.Context(), cacheKey); err == nil && ok {
				var rec idempotentRecord
				if json.Unmarshal([]byte(cached), &rec) == nil {
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("Idempotency-Replayed", "true")
					w.WriteHeader(rec.Status)
					w.Write(rec.Body)
					return
				}
			}

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK, body: &bytes.Buffer{}}
			next.ServeHTTP(rec, r)

			payload, err := json.Marshal(idempotentRecord{Status: rec.status, Body: json.RawMessage(rec.body.Bytes())})
			if err == nil {
				_ = cache.SetEX(context.Background(), cacheKey, string(payload), ttl)
			}
		})
	}
}

// recordingWriter tees a handler's response into a buffer so it can be
// cached verbatim alongside being written to the real client.
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (r *recordingWriter) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recordingWriter) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
