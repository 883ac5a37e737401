// Package uuidutil generates identifiers for monitored sessions.
package uuidutil

import "github.com/google/uuid"

// NewV4 generates a random UUID v4 string.
// Panics if the random source fails, which only happens on a broken system.
func NewV4() string {
	return uuid.New().String()
}

// SessionID returns a new identifier for one monitored round session.
func SessionID() string {
	return "sess-" + NewV4()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
