// Package router registers every HTTP route. Each route carries the
// operation name the authorization guard checks it against.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/estate-ledger/internal/auth"
	"github.com/iliyamo/estate-ledger/internal/authz"
	"github.com/iliyamo/estate-ledger/internal/config"
	"github.com/iliyamo/estate-ledger/internal/handler"
	"github.com/iliyamo/estate-ledger/internal/middleware"
	"github.com/iliyamo/estate-ledger/internal/service"
)

// Deps bundles what the routes need. Redis may be nil; caching and rate
// limiting are then disabled.
type Deps struct {
	Tokens    *auth.Service
	Accounts  *service.Accounts
	Roles     *service.Roles
	Ledger    *service.Ledger
	News      *service.News
	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
}

// Register installs authentication and every route on e.
func Register(e *echo.Echo, d Deps) {
	e.Use(middleware.Authenticate(d.Tokens))

	e.GET("/healthz", handler.Health, middleware.Authorize(authz.OpHealth))

	RegisterAuth(e, handler.NewAuthHandler(d.Accounts), d)
	RegisterPublic(e, handler.NewPublicHandler(d.Ledger, d.News), d)
	RegisterInvestor(e, handler.NewInvestorHandler(d.Ledger, d.News))
	RegisterApplications(e, handler.NewApplicationsHandler(d.Roles))
	RegisterAdmin(e, d)
}

// RegisterAuth registers session routes. The unauthenticated ones under
// /v1/auth sit behind the rate limiter.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, d Deps) {
	g := e.Group("/v1/auth", middleware.NewTokenBucket(d.RateLimit, d.Redis))
	g.POST("/signup", a.Signup, middleware.Authorize(authz.OpSignup))
	g.POST("/login", a.Login, middleware.Authorize(authz.OpLogin))
	g.POST("/refresh", a.Refresh, middleware.Authorize(authz.OpRefresh))
	g.POST("/logout", a.Logout, middleware.Authorize(authz.OpLogout))

	e.GET("/v1/me", a.Me, middleware.Authorize(authz.OpMe))
	e.PATCH("/v1/me", a.UpdateMe, middleware.Authorize(authz.OpUpdateMe))
	e.POST("/v1/logout-all", a.LogoutAll, middleware.Authorize(authz.OpLogoutAll))
}

// RegisterPublic registers the browse endpoints. Responses are cached in
// Redis and dropped on every admin mutation.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, d Deps) {
	cache := middleware.NewRedisCache(d.Cache, d.Redis)
	e.GET("/v1/properties", p.ListProperties, middleware.Authorize(authz.OpListProperties), cache)
	e.GET("/v1/properties/:id", p.GetProperty, middleware.Authorize(authz.OpGetProperty), cache)
	e.GET("/v1/updates", p.ListUpdates, middleware.Authorize(authz.OpListUpdates), cache)
}

// RegisterApplications registers the investment application routes: the
// applicant's own under /v1/me, review under /v1/admin.
func RegisterApplications(e *echo.Echo, h *handler.ApplicationsHandler) {
	me := e.Group("/v1/me/applications")
	me.POST("", h.Submit, middleware.Authorize(authz.OpApply))
	me.GET("", h.Mine, middleware.Authorize(authz.OpMyApplications))
	me.PATCH("/:id", h.Edit, middleware.Authorize(authz.OpEditApplication))

	admin := e.Group("/v1/admin/applications")
	admin.GET("", h.List, middleware.Authorize(authz.OpListApplications))
	admin.GET("/:id", h.Get, middleware.Authorize(authz.OpGetApplication))
	admin.POST("/:id/review", h.Review, middleware.Authorize(authz.OpReviewApp))
}
