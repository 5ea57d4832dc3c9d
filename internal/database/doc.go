// Package database provides the PostgreSQL document backend.
//
// Uses pgx for connection pooling and tern for migrations. The overlay document is one jsonb row,
// guarded by a circuit breaker so an unreachable database fails fast.
package database
