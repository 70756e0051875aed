package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/sanitize"
)

// SignatureHeader carries Meta's HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Hub-Signature-256"

// SignatureRecorder counts rejected deliveries.
type SignatureRecorder interface {
	RecordWebhook(status string)
}

// WebhookSignature verifies X-Hub-Signature-256 on POST requests against
// appSecret and rejects mismatches with 401. With an empty secret every
// request passes. The body is restored for the next handler.
func WebhookSignature(appSecret string, recorder SignatureRecorder, logger *zap.Logger) func(http.Handler) http.Handler {
	secret := []byte(appSecret)

	return func(next http.Handler) http.Handler {
		if len(secret) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body.Close()

			if !ValidSignature(secret, body, r.Header.Get(SignatureHeader)) {
				LoggerWithCorrelation(r.Context(), logger).Warn("webhook signature mismatch",
					zap.String("remote_addr", getClientIP(r)),
					zap.Bool("header_present", r.Header.Get(SignatureHeader) != ""),
				)
				logger.Debug("rejected webhook headers", zap.Any("headers", sanitize.Headers(r.Header)))
				if recorder != nil {
					recorder.RecordWebhook("bad_signature")
				}
				http.Error(w, "Invalid signature", http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

// ValidSignature reports whether header is "sha256=<hex hmac of body>".
func ValidSignature(secret, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
