package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new time-ordered identifier string (UUIDv7), so ids of rows created
// in sequence also sort in sequence
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
