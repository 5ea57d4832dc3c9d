// Package server implements the HTTP server using Echo framework.
//
// Routes: auth (role login), api (state commands), overlay (WebSocket), pages (static files), health and metrics.
// Handlers split by concern: handlers_auth.go, handlers_api.go, handlers_overlay.go, handlers_pages.go, handlers_health.go.
// The role gate lives in auth.go.
package server
