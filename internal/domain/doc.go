// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (conversation.go, event.go, mute.go, ports.go, journal.go, errors.go)
// hold shared types and the contracts of the external collaborators. No implementation code.
// Keeps the muter core independent of how the messaging service is reached.
package domain
