package httpserver

import (
	"net/http"

	"github.com/Skotchmaster/marketplace/internal/service"
	"github.com/Skotchmaster/marketplace/internal/transport"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/labstack/echo/v4"
)

type TagHTTP struct {
	Svc *service.TagService
}

func (h *TagHTTP) Suggest(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "tag.suggest")

	tags, err := h.Svc.Suggest(ctx, c.QueryParam("q"))
	if err != nil {
		return fail(l, "suggest_tags_error", "cannot get tags", err)
	}
	return c.JSON(http.StatusOK, tags)
}

func (h *TagHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "tag.create")

	var req transport.TagRequest
	if reason, err := bind(c, &req); err != nil {
		return badRequest(l, "create_tag_error", reason, err)
	}

	tag, err := h.Svc.Create(ctx, actor(c), req.Name)
	if err != nil {
		return fail(l, "create_tag_error", "cannot create tag", err)
	}

	l.Info("create_tag_success", "tag_id", tag.ID)
	return c.JSON(http.StatusCreated, tag)
}
