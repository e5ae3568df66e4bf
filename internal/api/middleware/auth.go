package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

// PrincipalKey is the echo context key holding the verified *ports.Principal.
const PrincipalKey = "principal"

// tokenQueryParam carries the token on websocket upgrades, where browsers
// cannot set headers.
const tokenQueryParam = "access_token"

// Auth verifies a bearer token of the given kind and injects the principal
// into the context. Session tokens are checked against the session registry
// on every request, so a revoked session fails immediately.
func Auth(tokens ports.TokenService, kind ports.TokenKind) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearer(c)
			if err != nil {
				return err
			}

			p, err := tokens.Verify(c.Request().Context(), raw, kind)
			if err != nil {
				if errors.Is(err, domain.ErrSessionRevoked) || errors.Is(err, domain.ErrInvalidToken) {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token").SetInternal(err)
				}
				return err
			}

			c.Set(PrincipalKey, p)
			return next(c)
		}
	}
}

// BearerToken returns the raw token the request was authenticated with.
func BearerToken(c echo.Context) string {
	raw, _ := bearer(c)
	return raw
}

func bearer(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if q := c.QueryParam(tokenQueryParam); q != "" {
			return q, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}
	return parts[1], nil
}
