package middleware

import (
	"net/http"
)

// Body size limits.
const (
	// DefaultMaxBodySize applies to admin requests (64KB).
	DefaultMaxBodySize = 64 << 10

	// MaxWebhookBodySize bounds Cloud API webhook deliveries (3MB).
	MaxWebhookBodySize = 3 << 20
)

// BodySizeLimiter rejects declared oversized bodies with 413 and caps
// the rest while they are read.
func BodySizeLimiter(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > maxBytes {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}

			// Chunked bodies have no Content-Length.
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}

// BodySizeLimiterWebhook limits webhook payload bodies.
func BodySizeLimiterWebhook() func(http.Handler) http.Handler {
	return BodySizeLimiter(MaxWebhookBodySize)
}
