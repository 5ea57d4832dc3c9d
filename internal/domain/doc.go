// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (donation.go, mission.go, state.go, errors.go, pubsub.go, role.go)
// with the shared types of the overlay document. No I/O here: transforms live in ledger, ownership in app.
package domain
