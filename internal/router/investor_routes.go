package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estate-ledger/internal/authz"
	"github.com/iliyamo/estate-ledger/internal/handler"
	"github.com/iliyamo/estate-ledger/internal/middleware"
)

// RegisterInvestor registers the portfolio routes. Every route reads the
// caller's own data.
func RegisterInvestor(e *echo.Echo, h *handler.InvestorHandler) {
	g := e.Group("/v1/investor")
	g.GET("/investments", h.Investments, middleware.Authorize(authz.OpMyInvestments))
	g.GET("/investments/:id", h.Investment, middleware.Authorize(authz.OpMyInvestment))
	g.GET("/portfolio/summary", h.Portfolio, middleware.Authorize(authz.OpMyPortfolio))
	g.GET("/updates", h.Updates, middleware.Authorize(authz.OpMyUpdates))
}
