package testutil

import (
	"net/http"

	"docverify/pkg/requestcontext"
)

// WithPrincipal marks the request as authenticated, as the auth middleware
// would after validating a bearer token.
func WithPrincipal(req *http.Request, subject string, roles ...string) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), requestcontext.AuthPrincipal{
		Subject: subject,
		Roles:   roles,
	})
	return req.WithContext(ctx)
}

// WithClientMetadata sets the client IP and user agent the metadata
// middleware would have extracted.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}
