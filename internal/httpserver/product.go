package httpserver

import (
	"net/http"

	"github.com/Skotchmaster/marketplace/internal/service"
	"github.com/Skotchmaster/marketplace/internal/transport"
	"github.com/Skotchmaster/marketplace/internal/util"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/labstack/echo/v4"
)

type CatalogHTTP struct {
	Svc  *service.CatalogService
	Tags *service.TagService
}

func (h *CatalogHTTP) CreateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.create_product")

	var req transport.ProductRequest
	if reason, err := bind(c, &req); err != nil {
		return badRequest(l, "create_product_error", reason, err)
	}

	product, err := h.Svc.CreateProduct(ctx, actor(c), req)
	if err != nil {
		return fail(l, "create_product_error", "cannot create product", err)
	}

	l.Info("create_product_success", "product_id", product.ID, "synced", product.Synced())
	return c.JSON(http.StatusCreated, product)
}

func (h *CatalogHTTP) GetProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.get_products")

	items, err := h.Svc.ListProducts(ctx, actor(c))
	if err != nil {
		return fail(l, "get_products_error", "cannot get products", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": items})
}

func (h *CatalogHTTP) GetProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.get_product")

	id, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(l, "get_product_error", "id is not uuid", err)
	}

	product, err := h.Svc.GetProduct(ctx, actor(c), id)
	if err != nil {
		return fail(l, "get_product_error", "cannot get product", err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *CatalogHTTP) UpdateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.update_product")

	id, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(l, "update_product_error", "id is not uuid", err)
	}
	var req transport.ProductRequest
	if reason, err := bind(c, &req); err != nil {
		return badRequest(l, "update_product_error", reason, err)
	}

	product, err := h.Svc.UpdateProduct(ctx, actor(c), id, req)
	if err != nil {
		return fail(l, "update_product_error", "cannot update product", err)
	}

	l.Info("update_product_success", "product_id", product.ID)
	return c.JSON(http.StatusOK, product)
}

func (h *CatalogHTTP) DeleteProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.delete_product")

	id, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(l, "delete_product_error", "id is not uuid", err)
	}
	var req transport.DeleteProductRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "delete_product_error", "invalid body", err)
	}

	if err := h.Svc.DeleteProduct(ctx, actor(c), id, req.DeleteRemote); err != nil {
		return fail(l, "delete_product_error", "cannot delete product", err)
	}

	l.Info("delete_product_success", "product_id", id, "delete_remote", req.DeleteRemote)
	return c.NoContent(http.StatusNoContent)
}

func (h *CatalogHTTP) SyncProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.sync_product")

	var req transport.SyncRequest
	if reason, err := bind(c, &req); err != nil {
		return badRequest(l, "sync_product_error", reason, err)
	}

	product, err := h.Svc.ForceSync(ctx, actor(c), req.ProductID)
	if err != nil {
		return fail(l, "sync_product_error", "cannot sync product", err)
	}

	l.Info("sync_product_success", "product_id", product.ID)
	return c.JSON(http.StatusOK, product)
}

func (h *CatalogHTTP) SyncAll(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.sync_all")

	report, err := h.Svc.SyncAll(ctx, actor(c))
	if err != nil {
		return fail(l, "sync_all_error", "cannot sync products", err)
	}

	l.Info("sync_all_success", "synced", len(report.Synced), "failed", len(report.Failed), "skipped", report.Skipped)
	return c.JSON(http.StatusOK, report)
}

func (h *CatalogHTTP) ProductTags(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.product_tags")

	id, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(l, "product_tags_error", "id is not uuid", err)
	}
	tags, err := h.Tags.ForProduct(ctx, id)
	if err != nil {
		return fail(l, "product_tags_error", "cannot get tags", err)
	}
	return c.JSON(http.StatusOK, tags)
}

func (h *CatalogHTTP) SearchProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.search_products")

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	total, items, err := h.Svc.SearchProducts(ctx, c.QueryParam("q"), offset, limit)
	if err != nil {
		return fail(l, "search_products_error", "cannot search products", err)
	}

	l.Info("search_products_success", "total", total)
	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": util.Meta(page, limit, offset, total),
	})
}
