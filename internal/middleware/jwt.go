package middleware

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/auth"
)

// Authenticate reads an optional Bearer access token. Requests without
// an Authorization header continue as PUBLIC; a header that is present
// but malformed, expired, tampered or carries a refresh token is rejected
// with 401 so that clients know to refresh. On success the caller's id
// and role snapshot are stored under "user_id" and "role".
func Authenticate(tokens *auth.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return next(c)
			}
			scheme, raw, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				return WriteError(c, fmt.Errorf("%w: expected a bearer token", apperr.ErrTokenInvalid))
			}
			claims, err := tokens.Verify(strings.TrimSpace(raw), auth.KindAccess)
			if err != nil {
				return WriteError(c, err)
			}
			id, err := claims.UserID()
			if err != nil {
				return WriteError(c, err)
			}
			c.Set(ctxUserID, id)
			c.Set(ctxRole, claims.Role)
			return next(c)
		}
	}
}
