package httpserver

import (
	"net/http"

	"github.com/Skotchmaster/marketplace/internal/service"
	"github.com/Skotchmaster/marketplace/internal/transport"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/labstack/echo/v4"
)

type RequestHTTP struct {
	Svc *service.RequestService
}

func (h *RequestHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "request.list")

	items, err := h.Svc.List(ctx, actor(c).ID, c.QueryParam("role"))
	if err != nil {
		return fail(l, "list_requests_error", "cannot get purchase requests", err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *RequestHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "request.create")

	var req transport.PurchaseRequestCreate
	if reason, err := bind(c, &req); err != nil {
		return badRequest(l, "create_request_error", reason, err)
	}

	pr, err := h.Svc.Create(ctx, actor(c), req)
	if err != nil {
		return fail(l, "create_request_error", "cannot create purchase request", err)
	}

	l.Info("create_request_success", "request_id", pr.ID)
	return c.JSON(http.StatusCreated, pr)
}

func (h *RequestHTTP) Approve(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "request.approve")

	id, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(l, "approve_request_error", "id is not uuid", err)
	}

	approval, err := h.Svc.Approve(ctx, actor(c), id)
	if err != nil {
		return fail(l, "approve_request_error", "cannot approve purchase request", err)
	}

	l.Info("approve_request_success", "request_id", id)
	return c.JSON(http.StatusOK, approval)
}

func (h *RequestHTTP) Reject(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "request.reject")

	id, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(l, "reject_request_error", "id is not uuid", err)
	}

	pr, err := h.Svc.Reject(ctx, actor(c), id)
	if err != nil {
		return fail(l, "reject_request_error", "cannot reject purchase request", err)
	}

	l.Info("reject_request_success", "request_id", id)
	return c.JSON(http.StatusOK, pr)
}
