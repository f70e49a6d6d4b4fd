package testutil

import (
	"context"
	"net/http"

	"bayanat/internal/access"
)

// WithCaller binds a caller to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithCaller(req *http.Request, caller *access.Caller) *http.Request {
	return req.WithContext(access.WithCaller(req.Context(), caller))
}

// WithUser binds a plain, role-less caller for userID.
func WithUser(req *http.Request, userID int, permissions ...string) *http.Request {
	return WithCaller(req, &access.Caller{UserID: userID, Permissions: permissions})
}

// WithAdmin binds an admin caller for userID.
func WithAdmin(req *http.Request, userID int) *http.Request {
	return WithCaller(req, &access.Caller{UserID: userID, Admin: true})
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
