package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/josh-kwaku/transfer-engine/internal/clock"
	"github.com/josh-kwaku/transfer-engine/internal/handler"
	"github.com/josh-kwaku/transfer-engine/internal/logging"
	"github.com/josh-kwaku/transfer-engine/internal/repository"
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxIdempotencyKey = 255

	// How long a claim blocks the key if its request never finishes.
	claimLease = 5 * time.Minute
)

type idempotencyRepository interface {
	Get(ctx context.Context, key string) (*repository.IdempotencyEntry, error)
	Claim(ctx context.Context, key, hash string, now, leaseUntil time.Time) (bool, error)
	Complete(ctx context.Context, entry *repository.IdempotencyEntry) error
	Release(ctx context.Context, key string) error
}

// Idempotency replays the stored response when a POST repeats an
// Idempotency-Key with the same method, path and body. The key is claimed
// before the handler runs, so a duplicate arriving mid-flight gets a 409 with
// Retry-After instead of running twice. Requests without the header pass
// through. Server errors release the claim so the client can retry.
func Idempotency(repo idempotencyRepository, clk clock.Clock, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKey {
				handler.RespondAppError(w, handler.ErrInvalidIdempotencyKey, nil)
				return
			}

			log := logging.FromContext(r.Context()).With("idempotency_key", key)

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			reqHash := computeHash(r.Method, r.URL.Path, body)

			now := clk.Now().UTC()
			claimed, err := repo.Claim(r.Context(), key, reqHash, now, now.Add(claimLease))
			if err != nil {
				log.Error("idempotency claim failed", "error", err)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}
			if !claimed {
				replay(w, r, repo, key, reqHash, log)
				return
			}

			// Claim bookkeeping outlives a client that hangs up.
			storeCtx := context.WithoutCancel(r.Context())
			finished := false
			defer func() {
				if finished {
					return
				}
				if err := repo.Release(storeCtx, key); err != nil {
					log.Error("idempotency release failed", "error", err)
				}
			}()

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError {
				return
			}

			done := clk.Now().UTC()
			entry := &repository.IdempotencyEntry{
				Key:          key,
				RequestHash:  reqHash,
				StatusCode:   rec.statusCode,
				ResponseBody: rec.body.Bytes(),
				CreatedAt:    now,
				ExpiresAt:    done.Add(ttl),
			}
			if err := repo.Complete(storeCtx, entry); err != nil {
				log.Error("idempotency store failed", "error", err)
				return
			}
			finished = true
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, repo idempotencyRepository, key, reqHash string, log *slog.Logger) {
	cached, err := repo.Get(r.Context(), key)
	if err != nil {
		log.Error("idempotency lookup failed", "error", err)
		handler.RespondAppError(w, handler.ErrInternalError, nil)
		return
	}

	switch {
	case cached != nil && cached.RequestHash != reqHash:
		handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
	case cached == nil || cached.InProgress():
		// nil means the holder released between the claim and this read.
		w.Header().Set("Retry-After", "1")
		handler.RespondAppError(w, handler.ErrIdempotencyInFlight, nil)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Idempotent-Replayed", "true")
		w.WriteHeader(cached.StatusCode)
		if _, err := w.Write(cached.ResponseBody); err != nil {
			log.Error("failed to write idempotent replay", "error", err)
		}
	}
}

func computeHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return fmt.Sprintf("%x", h.Sum(nil))
}

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
