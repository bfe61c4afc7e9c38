// Package util holds small internal helpers shared across the engine.
package util

import "github.com/google/uuid"

// NewID generates a unique identifier for sessions and events.
func NewID() string { return uuid.NewString() }
