// Package ledger implements the mutation commands on the overlay document.
//
// Every function is a pure transform of a *domain.State: it validates first and
// mutates only on success, so a rejected command leaves the state untouched.
// Persistence, broadcasting and serialization of access are the caller's job (see app).
package ledger
