// Package middleware provides the HTTP middleware for session
// authentication and request metrics.
//
// The auth middleware only establishes identity; it never rejects a
// request. Authorization decisions, including the 401 for missing
// identity, belong to the rbac gate so that public and protected routes
// can share one router.
package middleware
