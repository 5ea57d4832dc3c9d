// Package broadcast fans overlay updates out to WebSocket display clients using the actor pattern.
//
// One goroutine owns the client set and the latest published state; per-connection writer goroutines
// absorb slow clients, which are evicted once their buffer fills.
package broadcast
