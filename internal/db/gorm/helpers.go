// Package gorm provides GORM-based storage for per-chat usage statistics.
package gorm

import (
	"net/http"
	"strconv"
)

// MaxListLimit caps list queries issued from HTTP parameters.
const MaxListLimit = 200

// ParseLimitParam parses the "limit" query parameter from an HTTP request.
// Returns defaultLimit if the parameter is missing or invalid.
func ParseLimitParam(r *http.Request, defaultLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			if parsed > MaxListLimit {
				return MaxListLimit
			}
			return parsed
		}
	}
	return defaultLimit
}
