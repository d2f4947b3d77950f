package middleware

import (
	"context"
	"net/http"
	"strings"

	"erpadmin/internal/platform/requestctx"
)

const maxRequestIDLen = 128

// RequestID propagates the caller's X-Request-ID or mints a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(requestctx.HeaderRequestID))
		if reqID == "" || len(reqID) > maxRequestIDLen {
			reqID = requestctx.NewRequestID()
		}
		w.Header().Set(requestctx.HeaderRequestID, reqID)
		ctx := requestctx.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) string {
	return requestctx.GetRequestID(ctx)
}
