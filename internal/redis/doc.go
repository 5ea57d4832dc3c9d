// Package redis implements the remote document backend on Redis.
//
// The whole overlay document lives under one key. The client carries a metrics hook and a
// circuit breaker hook so a dead Redis fails fast instead of stalling state commands.
package redis
