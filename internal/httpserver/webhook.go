package httpserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/Skotchmaster/marketplace/internal/identity"
	"github.com/Skotchmaster/marketplace/internal/service"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/labstack/echo/v4"
)

const maxWebhookBody = 1 << 20

type WebhookHTTP struct {
	Verifier *identity.Verifier
	Svc      *service.AccountService
}

// Identity receives user lifecycle events from the identity provider.
func (h *WebhookHTTP) Identity(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "webhook.identity")

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return badRequest(l, "identity_webhook_error", "cannot read body", err)
	}

	ev, err := h.Verifier.Parse(payload, c.Request().Header)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidSignature) {
			return badRequest(l, "identity_webhook_error", "invalid signature", err)
		}
		return badRequest(l, "identity_webhook_error", "invalid payload", err)
	}

	if err := h.Svc.HandleIdentityEvent(ctx, ev); err != nil {
		l.Error("identity_webhook_error", "status", 500, "reason", "cannot handle event", "type", ev.Type, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot handle event")
	}

	l.Info("identity_webhook_success", "type", ev.Type, "user_id", ev.Data.ID)
	return c.NoContent(http.StatusOK)
}
