package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/raven-oracle/portal/internal/api/middleware"
	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

// principal extracts the principal injected by the Auth middleware. Its
// absence means the route was mounted without authentication.
func principal(c echo.Context) (*ports.Principal, error) {
	p, _ := c.Get(middleware.PrincipalKey).(*ports.Principal)
	if p == nil || p.UserID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return p, nil
}

func actor(c echo.Context) (domain.Actor, error) {
	p, err := principal(c)
	if err != nil {
		return domain.Actor{}, err
	}
	return p.Actor(), nil
}

// bindValid binds the request body into req and validates it.
func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return nil
}
