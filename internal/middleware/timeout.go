package middleware

import (
	"net/http"
	"time"
)

// Timeout wraps non-streaming handlers with an http.TimeoutHandler. It
// protects /settings, /chat/history, and the non-streaming /chat against
// slow-read attacks; /chat/stream must never be wrapped with this, since
// an SSE response legitimately stays open for the life of a generation.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"success":false,"error":"request timeout"}`)
	}
}
