package middleware

// identity.go extracts who is calling: the anonymous seat-selection session
// and, on authenticated routes, the user id taken from the JWT.

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// SessionHeader carries the seat-selection session id when it is not part
// of the path, query or body.
const SessionHeader = "X-Session-ID"

// SessionID returns the caller's seat-selection session from the
// X-Session-ID header, falling back to the session_id query parameter.
// Handlers that read a JSON body prefer the body field over both.
func SessionID(c echo.Context) string {
	if v := strings.TrimSpace(c.Request().Header.Get(SessionHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(c.QueryParam("session_id"))
}

// UserID returns the authenticated user's id stored by JWTAuth.  The sub
// claim may be encoded as a JSON number or a decimal string.
func UserID(c echo.Context) (uint64, bool) {
	switch v := c.Get("user_id").(type) {
	case float64:
		if v > 0 && v == float64(uint64(v)) {
			return uint64(v), true
		}
	case string:
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}
