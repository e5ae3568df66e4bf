package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/raven-oracle/portal/internal/core/ports"
)

// RequireAdmin rejects principals whose session was not issued as an
// administrator. Services re-check the AdminRole relation before any write.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, _ := c.Get(PrincipalKey).(*ports.Principal)
			if p == nil || !p.IsAdmin {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden", "code": "UNAUTHORIZED"})
			}
			return next(c)
		}
	}
}
