package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estate-ledger/internal/authz"
)

// Authorize guards a route with the capabilities registered for op. It
// must run after Authenticate. PUBLIC callers are answered with 401 and
// authenticated callers lacking a capability with 403.
func Authorize(op string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := authz.AuthorizeOp(RoleOf(c), op)
			if !d.Allowed {
				return WriteError(c, d.Err)
			}
			return next(c)
		}
	}
}
