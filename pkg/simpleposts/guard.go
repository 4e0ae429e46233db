package simpleposts

import (
	"strings"

	"github.com/google/uuid"
)

// Allowed reports whether the principal's owner identity may mutate a record
// owned by recordOwnerID. Identifiers are compared in normalized string form
// so that differently encoded representations of one id match. Empty ids
// never match.
func Allowed(principalOwnerID, recordOwnerID string) bool {
	p := normalizeID(principalOwnerID)
	r := normalizeID(recordOwnerID)
	if p == "" || r == "" {
		return false
	}
	return p == r
}

func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if parsed, err := uuid.Parse(id); err == nil {
		if parsed == uuid.Nil {
			return ""
		}
		return parsed.String()
	}
	return strings.ToLower(id)
}
