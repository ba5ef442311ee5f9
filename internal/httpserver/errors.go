package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Skotchmaster/marketplace/internal/service"
	middleware "github.com/Skotchmaster/marketplace/pkg/middleware/auth"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrMissingEmail):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrNotConnected),
		errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail logs a service error and turns it into the client response.
// Messages of 5xx errors stay in the log only.
func fail(l *slog.Logger, event, reason string, err error) error {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		l.Error(event, "status", status, "reason", reason, "error", err)
		if status == http.StatusBadGateway {
			return echo.NewHTTPError(status, "payment processor unavailable")
		}
		return echo.NewHTTPError(status, reason)
	}
	l.Warn(event, "status", status, "reason", reason, "error", err)
	return echo.NewHTTPError(status, err.Error())
}

func badRequest(l *slog.Logger, event, reason string, err error) error {
	l.Warn(event, "status", http.StatusBadRequest, "reason", reason, "error", err)
	return echo.NewHTTPError(http.StatusBadRequest, reason)
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Param(name))
}

func actor(c echo.Context) service.Actor {
	return service.Actor{ID: middleware.UserID(c), Email: middleware.Email(c)}
}
