package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/jmylchreest/radiarr/internal/observability"
)

// RequestIDHeader is the HTTP header for request ID.
const RequestIDHeader = "X-Request-ID"

// RequestID is a middleware that injects a request ID into the context.
// If the request already has an X-Request-ID header, it will be used.
// Otherwise, a new UUID will be generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := observability.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return observability.RequestIDFromContext(ctx)
}
