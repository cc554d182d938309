package middleware

import (
	"log/slog"
	"net/http"

	"golang.org/x/sync/semaphore"
)

// UploadLimiter bounds how many upload bodies are in flight at once so
// a burst of large files cannot exhaust memory or bandwidth. Requests
// wait for a slot until their context is canceled.
type UploadLimiter struct {
	sem      *semaphore.Weighted
	maxBytes int64
}

func NewUploadLimiter(concurrency, maxBytes int64) *UploadLimiter {
	return &UploadLimiter{
		sem:      semaphore.NewWeighted(concurrency),
		maxBytes: maxBytes,
	}
}

// Limit wraps an upload handler with admission control and a body cap.
func (l *UploadLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := l.sem.Acquire(r.Context(), 1); err != nil {
			slog.Warn("upload admission canceled", "path", r.URL.Path, "error", err)
			writeJSONError(w, http.StatusServiceUnavailable, "server busy")
			return
		}
		defer l.sem.Release(1)

		r.Body = http.MaxBytesReader(w, r.Body, l.maxBytes)
		next.ServeHTTP(w, r)
	}
}
