package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fracvault/services/vaultd/journal"
)

// ContextKeyIDKey stores the idempotency key associated with the request.
type ContextKeyIDKey string

const contextKeyIdempotency ContextKeyIDKey = "idempotency-key"

// IdempotencyKeyFrom returns the idempotency key attached to ctx, if any.
func IdempotencyKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(contextKeyIdempotency).(string)
	return key
}

type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	refs  map[string]int
}

func (k *keyLocks) acquire(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.refs[key]++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		k.refs[key]--
		if k.refs[key] == 0 {
			delete(k.refs, key)
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// WithIdempotency ensures requests with the same Idempotency-Key are executed
// once. Responses below 500 are stored and replayed; server errors and
// throttled responses are not, so the client may retry them.
func WithIdempotency(db *gorm.DB) func(http.Handler) http.Handler {
	locks := &keyLocks{locks: make(map[string]*sync.Mutex), refs: make(map[string]int)}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" || db == nil || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > 128 {
				http.Error(w, "idempotency key too long", http.StatusBadRequest)
				return
			}
			release := locks.acquire(key)
			defer release()

			var record journal.IdempotencyKey
			err := db.First(&record, "key = ?", key).Error
			switch {
			case err == nil:
				if record.Method != r.Method || record.Path != r.URL.Path {
					http.Error(w, "idempotency key reused for a different request", http.StatusUnprocessableEntity)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(record.Status)
				_, _ = w.Write([]byte(record.Response))
				return
			case !errors.Is(err, gorm.ErrRecordNotFound):
				http.Error(w, "idempotency store unavailable", http.StatusServiceUnavailable)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w}
			ctx := context.WithValue(r.Context(), contextKeyIdempotency, key)
			next.ServeHTTP(recorder, r.WithContext(ctx))

			status := recorder.status
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
				return
			}
			payload := journal.IdempotencyKey{
				Key:       key,
				RequestID: requestIDOrNew(r),
				Method:    r.Method,
				Path:      r.URL.Path,
				Status:    status,
				Response:  recorder.buf.String(),
				CreatedAt: time.Now(),
			}
			_ = db.Create(&payload).Error
		})
	}
}

// responseRecorder captures the response for idempotent operations.
type responseRecorder struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (rr *responseRecorder) WriteHeader(status int) {
	if rr.status == 0 {
		rr.status = status
	}
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.buf.Write(b)
	return rr.ResponseWriter.Write(b)
}

func requestIDOrNew(r *http.Request) string {
	if id := RequestIDFrom(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}
