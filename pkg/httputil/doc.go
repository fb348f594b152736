// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, request parsing, and common middleware.
//
// Response helpers:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteError(w, http.StatusForbidden, err)
//	httputil.WriteBadRequest(w, "invalid request body")
//
// Request parsing:
//
//	var req inviteRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
//	id, err := httputil.ParsePathInt64(r, "id")
//
// Middleware:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(),
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)
package httputil
