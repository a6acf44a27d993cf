package uid

import (
	"strings"

	"github.com/google/uuid"
)

// New generates a new unique identifier.
func New() string {
	return uuid.New().String()
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Usable reports whether a caller-supplied identifier, such as a request id
// or an idempotency key, is short and free of whitespace.
func Usable(id string) bool {
	return id != "" && len(id) <= 128 && !strings.ContainsAny(id, "\r\n\t ")
}

// OrNew returns id when it is usable, otherwise a fresh identifier.
func OrNew(id string) string {
	if Usable(id) {
		return id
	}
	return New()
}
