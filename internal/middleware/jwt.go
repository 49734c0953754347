package middleware // middleware holds the echo middleware shared by the route groups

import (
	"net/http" // HTTP status codes for responses
	"strings"  // prefix checks on the Authorization header

	"github.com/labstack/echo/v4" // echo middleware signatures

	"github.com/noseryoung/course-rating/internal/utils" // access token parsing
)

// Context keys set by JWTAuth.
const (
	ctxUserID = "user_id" // uint64 subject of the access token
	ctxRoles  = "roles"   // []string role names from the token
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// signed with secret.  On success the user id and role names from the token
// are stored in the context where UserID and Roles can read them.  Missing
// or invalid tokens are answered with 401 before the handler runs.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header looks like "Bearer <jwt>".
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			// ParseAccessToken checks the HMAC method, the expiry and the
			// subject format.
			uid, roles, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(ctxUserID, uid)
			c.Set(ctxRoles, roles)
			return next(c)
		}
	}
}
