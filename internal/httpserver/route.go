package httpserver

import (
	"net/http"

	"github.com/Skotchmaster/marketplace/pkg/db"
	middleware "github.com/Skotchmaster/marketplace/pkg/middleware/auth"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

type Deps struct {
	DB      *gorm.DB
	Session *middleware.SessionMiddleware

	Catalog      *CatalogHTTP
	Tags         *TagHTTP
	Checkout     *CheckoutHTTP
	Requests     *RequestHTTP
	Marketplaces *MarketplaceHTTP
	Accounts     *AccountHTTP
	Webhooks     *WebhookHTTP

	// RateLimitRPS bounds webhook and checkout calls per client IP. Zero disables it.
	RateLimitRPS int
}

func rateLimit(rps int) echo.MiddlewareFunc {
	if rps <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echomw.RateLimiter(echomw.NewRateLimiterMemoryStore(rate.Limit(rps)))
}

func Register(e *echo.Echo, d *Deps) {
	e.Validator = NewValidator()

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.DB != nil {
			if err := db.Ping(c.Request().Context(), d.DB); err != nil {
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})

	limit := rateLimit(d.RateLimitRPS)

	api := e.Group("/api")
	api.POST("/webhooks/identity", d.Webhooks.Identity, limit)
	api.GET("/users/:slug", d.Accounts.Profile)

	auth := api.Group("", d.Session.RequireAuth)
	auth.GET("/me", d.Accounts.Me)

	markets := auth.Group("/marketplaces")
	markets.GET("", d.Marketplaces.List)
	markets.POST("", d.Marketplaces.Create)
	markets.GET("/:slug", d.Marketplaces.Get)
	markets.POST("/:id/membership", d.Marketplaces.Join)
	markets.DELETE("/:id/membership", d.Marketplaces.Leave)

	products := auth.Group("/products")
	products.GET("", d.Catalog.GetProducts)
	products.POST("", d.Catalog.CreateProduct)
	products.GET("/search", d.Catalog.SearchProducts)
	products.POST("/sync", d.Catalog.SyncProduct)
	products.POST("/sync-all", d.Catalog.SyncAll)
	products.GET("/:id", d.Catalog.GetProduct)
	products.PUT("/:id", d.Catalog.UpdateProduct)
	products.DELETE("/:id", d.Catalog.DeleteProduct)
	products.GET("/:id/tags", d.Catalog.ProductTags)

	auth.GET("/tags", d.Tags.Suggest)
	auth.POST("/tags", d.Tags.Create)

	auth.POST("/checkout", d.Checkout.Checkout, limit)

	requests := auth.Group("/purchase-requests")
	requests.GET("", d.Requests.List)
	requests.POST("", d.Requests.Create)
	requests.POST("/:id/approve", d.Requests.Approve)
	requests.POST("/:id/reject", d.Requests.Reject)

	stripe := auth.Group("/stripe")
	stripe.POST("/connect", d.Accounts.Connect)
	stripe.POST("/disconnect", d.Accounts.Disconnect)
	stripe.GET("/onboarding-link", d.Accounts.OnboardingLink)
	stripe.GET("/insights-summary", d.Accounts.Insights)
}
