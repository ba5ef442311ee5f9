package httpserver

import (
	"net/http"

	"github.com/Skotchmaster/marketplace/internal/service"
	"github.com/Skotchmaster/marketplace/internal/transport"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/labstack/echo/v4"
)

type MarketplaceHTTP struct {
	Svc *service.MarketplaceService
}

func (h *MarketplaceHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "marketplace.list")

	items, err := h.Svc.ListForUser(ctx, actor(c).ID)
	if err != nil {
		return fail(l, "list_marketplaces_error", "cannot get marketplaces", err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *MarketplaceHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "marketplace.create")

	var req transport.MarketplaceRequest
	if reason, err := bind(c, &req); err != nil {
		return badRequest(l, "create_marketplace_error", reason, err)
	}

	m, err := h.Svc.Create(ctx, actor(c), req)
	if err != nil {
		return fail(l, "create_marketplace_error", "cannot create marketplace", err)
	}

	l.Info("create_marketplace_success", "marketplace_id", m.ID, "slug", m.Slug)
	return c.JSON(http.StatusCreated, m)
}

func (h *MarketplaceHTTP) Get(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "marketplace.get")

	detail, err := h.Svc.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		return fail(l, "get_marketplace_error", "cannot get marketplace", err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *MarketplaceHTTP) Join(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "marketplace.join")

	id, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(l, "join_marketplace_error", "id is not uuid", err)
	}
	if err := h.Svc.Join(ctx, actor(c), id); err != nil {
		return fail(l, "join_marketplace_error", "cannot join marketplace", err)
	}

	l.Info("join_marketplace_success", "marketplace_id", id)
	return c.NoContent(http.StatusNoContent)
}

func (h *MarketplaceHTTP) Leave(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "marketplace.leave")

	id, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(l, "leave_marketplace_error", "id is not uuid", err)
	}
	if err := h.Svc.Leave(ctx, actor(c), id); err != nil {
		return fail(l, "leave_marketplace_error", "cannot leave marketplace", err)
	}

	l.Info("leave_marketplace_success", "marketplace_id", id)
	return c.NoContent(http.StatusNoContent)
}
