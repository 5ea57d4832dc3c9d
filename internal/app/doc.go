// Package app owns the authoritative overlay document.
//
// Service runs a single goroutine that applies every command to the state in arrival order (actor pattern,
// no mutex around the state). Each successful mutation is then saved through the store and published to
// display clients from the caller's goroutine, so a slow backend only stalls the request that caused it.
package app
