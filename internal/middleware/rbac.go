package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRoles lets a request through only when JWTMiddleware resolved an
// actor whose role is one of roles. A request without an actor gets 401, a
// known actor with another role gets 403.
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	denied := "This action requires the " + strings.Join(roles, " or ") + " role"

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := ActorID(c); !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "Authentication required"})
			}
			role, _ := c.Get(ContextRole).(string)
			if _, ok := allowed[role]; !ok {
				return c.JSON(http.StatusForbidden, echo.Map{"success": false, "message": denied})
			}
			return next(c)
		}
	}
}
