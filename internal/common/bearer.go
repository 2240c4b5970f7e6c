package common

import "strings"

// ParseBearer extracts the token from an "Authorization: Bearer <token>"
// value. It returns an empty string when the value is not a bearer credential.
func ParseBearer(value string) string {
	if len(value) <= len(BearerPrefix) || !strings.EqualFold(value[:len(BearerPrefix)], BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(value[len(BearerPrefix):])
}
