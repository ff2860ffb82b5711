package utils

import (
	"strings"

	"github.com/google/uuid"
)

const estimatePrefix = "est-"

// GenerateEstimateID returns a new random estimate identifier
func GenerateEstimateID() string {
	return estimatePrefix + uuid.NewString()
}

// ValidateID checks a caller supplied identifier. IDs may not contain path
// separators or the ':' used for sub-resources.
func ValidateID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	return !strings.ContainsAny(id, "/: \t\n")
}
