// Package message defines the wire and durable representation of an actor
// message: the envelope clients exchange, the per-message lifecycle state
// tracked by storage, and the small packed-blob codec used by the
// compactor.
package message

import (
	"fmt"

	"github.com/google/uuid"
)

// ID is a unique, time-sortable message identifier.
//
// The source system used a ULID; we get the same "roughly monotonic,
// sortable by creation time" property from a version-7 UUID without
// pulling in a dedicated ULID library, since google/uuid already ships
// NewV7 and nothing else in the retrieved corpus depends on a ULID
// package.
type ID string

// NewID generates a fresh, time-sortable ID.
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the OS entropy source is broken; there is
		// nothing a caller could do differently, so fall back to a
		// random v4 rather than propagating an error through every
		// call site that creates a message.
		return ID(uuid.NewString())
	}
	return ID(id.String())
}

// ParseID validates that s looks like an ID produced by NewID.
func ParseID(s string) (ID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("message: invalid id %q: %w", s, err)
	}
	return ID(s), nil
}

func (id ID) String() string { return string(id) }

// IsZero reports whether id is the empty ID.
func (id ID) IsZero() bool { return id == "" }
