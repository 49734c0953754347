package middleware

// identity.go reads what JWTAuth stored in the echo context.  Handlers use
// UserID and Roles; the rate limiter uses subject to build its keys.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated user's id.  ok is false on routes that
// are not behind JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	return id, ok && id != 0
}

// Roles returns the role names of the authenticated user, or nil.
func Roles(c echo.Context) []string {
	roles, _ := c.Get(ctxRoles).([]string)
	return roles
}

// subject is the user id as a string, or "anon" for unauthenticated
// requests.
func subject(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
