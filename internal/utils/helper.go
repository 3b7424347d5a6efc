package utils

import "github.com/google/uuid"

func ParseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// NewEdgeID returns a fresh foreign key edge id.
func NewEdgeID() string {
	return "fk-" + uuid.NewString()
}

// NewColumnID returns a fresh stable column id.
func NewColumnID() string {
	return "colid-" + uuid.NewString()
}

func Contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
