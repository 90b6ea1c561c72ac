// Package domain defines the core domain types and interfaces.
//
// This package contains the shared vocabulary of the realtime layer: event
// kinds, user roles, cross-cutting interfaces, and sentinel errors. No
// implementation code - just contracts. Prevents circular imports by keeping
// interfaces on the consumer side.
package domain
