// Package requesttime gives every operation inside one HTTP request the same "now",
// so document issuedAt, audit timestamps and rate-limit windows agree.
package requesttime

import (
	"net/http"
	"time"

	"docverify/pkg/requestcontext"
)

// Middleware captures the request start time into the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
