package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier string
func GenerateID() string {
	return uuid.New().String()
}

// GenerateSortableID returns a unique identifier whose string form sorts in
// creation order (UUIDv7). It falls back to a random id if the clock source
// fails.
func GenerateSortableID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return GenerateID()
	}
	return id.String()
}
