package httpserver

import (
	"net/http"

	"github.com/Skotchmaster/marketplace/internal/service"
	"github.com/Skotchmaster/marketplace/internal/transport"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/labstack/echo/v4"
)

type CheckoutHTTP struct {
	Svc *service.CheckoutService
}

func (h *CheckoutHTTP) Checkout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.checkout")

	var req transport.CheckoutRequest
	if reason, err := bind(c, &req); err != nil {
		return badRequest(l, "checkout_error", reason, err)
	}

	res, err := h.Svc.Checkout(ctx, actor(c), req)
	if err != nil {
		return fail(l, "checkout_error", "cannot start checkout", err)
	}

	l.Info("checkout_success", "mode", res.Mode, "sessions", len(res.Sessions), "requests", len(res.PurchaseRequests))
	return c.JSON(http.StatusOK, res)
}
