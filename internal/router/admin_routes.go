package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estate-ledger/internal/authz"
	"github.com/iliyamo/estate-ledger/internal/handler"
	"github.com/iliyamo/estate-ledger/internal/middleware"
)

// RegisterAdmin registers the management routes under /v1/admin.
// Mutations drop the public response cache once they succeed.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group("/v1/admin")
	inv := middleware.InvalidateOnWrite(d.Cache, d.Redis)
	op := middleware.Authorize

	users := handler.NewAdminUsersHandler(d.Roles, d.Ledger)
	g.GET("/users", users.List, op(authz.OpListUsers))
	g.POST("/users/:id/promote", users.Promote, op(authz.OpPromoteUser))
	g.POST("/users/:id/demote", users.Demote, op(authz.OpDemoteUser))
	g.POST("/users/:id/disable", users.Disable, op(authz.OpDisableUser))
	g.POST("/users/:id/enable", users.Enable, op(authz.OpEnableUser))
	g.GET("/users/:id/portfolio", users.Portfolio, op(authz.OpUserPortfolio))

	props := handler.NewAdminPropertiesHandler(d.Ledger)
	g.POST("/properties", props.Create, op(authz.OpCreateProperty), inv)
	g.GET("/properties", props.List, op(authz.OpAdminProperties))
	g.PATCH("/properties/:id", props.Update, op(authz.OpEditProperty), inv)
	g.DELETE("/properties/:id", props.Delete, op(authz.OpDeleteProperty), inv)
	g.POST("/properties/:id/archive", props.Archive, op(authz.OpArchiveProperty), inv)
	g.POST("/properties/:id/restore", props.Restore, op(authz.OpRestoreProperty), inv)
	g.POST("/properties/:id/sold", props.MarkSold, op(authz.OpMarkSold), inv)

	invs := handler.NewAdminInvestmentsHandler(d.Ledger)
	g.POST("/investments", invs.Assign, op(authz.OpAssignInvestment), inv)
	g.GET("/investments", invs.List, op(authz.OpListInvestments))
	g.PATCH("/investments/:id/valuation", invs.Valuation, op(authz.OpUpdateValuation), inv)

	news := handler.NewAdminUpdatesHandler(d.News)
	g.POST("/updates", news.Create, op(authz.OpCreateUpdate), inv)
	g.PATCH("/updates/:id", news.Update, op(authz.OpEditUpdate), inv)
	g.DELETE("/updates/:id", news.Delete, op(authz.OpDeleteUpdate), inv)
}
