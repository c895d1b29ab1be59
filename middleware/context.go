package middleware

import (
	"context"
	"net"
	"net/http"
)

type contextKey string

const callerKeyContextKey contextKey = "caller_key"

// CallerKeyHeader identifies the caller for rate limiting purposes.
const CallerKeyHeader = "X-Caller-Key"

// CallerKey extracts the caller identity from the request and stores it in
// the context. Falls back to the remote IP when the header is absent.
func CallerKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(CallerKeyHeader)
		if key == "" {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			key = host
		}
		ctx := context.WithValue(r.Context(), callerKeyContextKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCallerKeyFromContext returns the caller identity, or "anonymous".
func GetCallerKeyFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(callerKeyContextKey).(string); ok && key != "" {
		return key
	}
	return "anonymous"
}
