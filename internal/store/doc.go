// Package store loads and saves the overlay document across storage backends.
//
// A remote backend (Redis or PostgreSQL, optional) is preferred on load, the local snapshot file is the
// fallback, and built-in defaults fill whatever neither provides. Saves go to every backend, best effort.
package store
