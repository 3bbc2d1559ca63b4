package utils

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"vditaxi/globals"
)

// GetUserIDFromRequest returns the authenticated user id, 0 if none.
func GetUserIDFromRequest(r *http.Request) int64 {
	id, _ := r.Context().Value(globals.UserIDKey).(int64)
	return id
}

// GetRequestID returns the id assigned by the request id middleware.
func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(globals.RequestIDKey).(string)
	return id
}

func GetUUID() string {
	return uuid.New().String()
}

// ParseInt64 parses a path or query value, returning ok=false when it
// is not a positive integer.
func ParseInt64(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// QueryInt returns the integer query parameter name, or def when it is
// missing or malformed.
func QueryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return def
	}
	return v
}
