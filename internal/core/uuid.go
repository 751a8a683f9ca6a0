package core

import "github.com/google/uuid"

// NewUUIDv4 returns a random UUID in canonical form.
func NewUUIDv4() string {
	return uuid.NewString()
}

// IsValidUUIDv4 reports whether s is a canonical version-4 UUID.
func IsValidUUIDv4(s string) bool {
	if len(s) != 36 {
		return false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.Version() == 4 && id.Variant() == uuid.RFC4122
}
