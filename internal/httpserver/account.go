package httpserver

import (
	"net/http"

	"github.com/Skotchmaster/marketplace/internal/service"
	"github.com/Skotchmaster/marketplace/internal/transport"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/labstack/echo/v4"
)

type AccountHTTP struct {
	Svc *service.AccountService
}

func (h *AccountHTTP) Me(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "account.me")

	d, err := h.Svc.Dashboard(ctx, actor(c))
	if err != nil {
		return fail(l, "dashboard_error", "cannot load dashboard", err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *AccountHTTP) Profile(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "account.profile")

	p, err := h.Svc.Profile(ctx, c.Param("slug"))
	if err != nil {
		return fail(l, "profile_error", "cannot load profile", err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *AccountHTTP) Connect(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "account.connect")

	var req transport.ConnectRequest
	if reason, err := bind(c, &req); err != nil {
		return badRequest(l, "connect_account_error", reason, err)
	}

	conn, err := h.Svc.ConnectAccount(ctx, actor(c), req.Email)
	if err != nil {
		return fail(l, "connect_account_error", "cannot connect account", err)
	}

	l.Info("connect_account_success", "account_id", conn.AccountID)
	return c.JSON(http.StatusOK, conn)
}

func (h *AccountHTTP) Disconnect(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "account.disconnect")

	if err := h.Svc.DisconnectAccount(ctx, actor(c)); err != nil {
		return fail(l, "disconnect_account_error", "cannot disconnect account", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AccountHTTP) OnboardingLink(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "account.onboarding_link")

	link, err := h.Svc.OnboardingLink(ctx, actor(c))
	if err != nil {
		return fail(l, "onboarding_link_error", "cannot create onboarding link", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": link})
}

func (h *AccountHTTP) Insights(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "account.insights")

	ins, err := h.Svc.Insights(ctx, actor(c))
	if err != nil {
		return fail(l, "insights_error", "cannot load insights", err)
	}
	return c.JSON(http.StatusOK, ins)
}
