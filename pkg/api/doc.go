// Package api assembles the HTTP surface: the /api/v1 router with its
// middleware chain, the identity-provider hook endpoints under
// /internal/hooks, and the avatar blob endpoints.
package api
