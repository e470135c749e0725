package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/token-sale/internal/config"
	"github.com/iliyamo/token-sale/internal/handler"
	"github.com/iliyamo/token-sale/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance. Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Used by load balancers and monitoring to verify the service is up.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies
// the necessary middleware. Unauthenticated operations live under
// /v1/auth, while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Refresh rotates the refresh token; the old one is revoked.
	g.POST("/refresh", a.Refresh)
	// Logout accepts a JSON body containing a refresh_token and
	// invalidates it. No JWT is required, matching the refresh flow.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("ADMIN", "INVESTOR"))
	auth.GET("/me", a.Me)
}

// RegisterPublic registers unauthenticated browse endpoints. These
// routes carry the Redis response cache so repeated polling of the sale
// state does not touch the engine's lock on every request; mutating
// handlers flush the cache prefix after each accepted operation.
func RegisterPublic(e *echo.Echo, s *handler.SaleHandler, cacheCfg config.CacheConfig, rdb *redis.Client) {
	cached := middleware.NewRedisCache(cacheCfg, rdb)

	// Token metadata and reserve holdings.
	e.GET("/v1/token", s.GetToken, cached)
	// Observable sale state: lifecycle, window, bounds, inventory, custody.
	e.GET("/v1/sale", s.GetSale, cached)
	// Purchase ledger of the current epoch, in insertion order.
	e.GET("/v1/sale/purchases", s.ListPurchases, cached)
	e.GET("/v1/sale/purchases/:index", s.GetPurchase, cached)
}

// RegisterSale registers the authenticated sale operations. Role
// middleware guards the route; the engine re-checks the caller's
// address against its own admin/whitelist policy, so a forged role
// claim alone cannot reach a privileged operation.
func RegisterSale(e *echo.Echo, s *handler.SaleHandler, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1/sale")
	g.Use(middleware.JWTAuth(jwtSecret))
	if rlCfg.Enabled {
		g.Use(middleware.NewTokenBucket(rlCfg, rdb))
	}

	admin := g.Group("", middleware.RequireRole("ADMIN"))
	admin.POST("/start", s.StartSale)
	admin.POST("/investors", s.ApproveInvestor)
	admin.POST("/release", s.Release)
	admin.POST("/withdraw", s.Withdraw)
	admin.GET("/audit", s.Audit)

	investor := g.Group("", middleware.RequireRole("INVESTOR", "ADMIN"))
	investor.POST("/buy", s.Buy)
	investor.GET("/account", s.MyAccount)
}
