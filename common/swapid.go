package common

import (
	"github.com/google/uuid"
)

// SwapID is the random 128-bit identifier binding an in-flight swap to its
// persisted state (see GLOSSARY: "Swap id").
type SwapID uuid.UUID

// NewSwapID generates a fresh, random swap id.
func NewSwapID() SwapID {
	return SwapID(uuid.New())
}

// ParseSwapID parses the canonical string form of a swap id.
func ParseSwapID(s string) (SwapID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return SwapID{}, err
	}
	return SwapID(id), nil
}

func (id SwapID) String() string {
	return uuid.UUID(id).String()
}

// Bytes returns the 16-byte representation of the swap id, the form used
// as the persistence store's key.
func (id SwapID) Bytes() []byte {
	return id[:]
}
