package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estate-ledger/internal/model"
)

// Context keys set by Authenticate.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// UserID returns the authenticated caller. ok is false for PUBLIC
// callers.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	return id, ok && id != 0
}

// RoleOf returns the role snapshot of the caller's access token, or
// PUBLIC when the request carries none.
func RoleOf(c echo.Context) model.Role {
	if r, ok := c.Get(ctxRole).(model.Role); ok && r != "" {
		return r
	}
	return model.RolePublic
}

// principal renders the caller for rate-limit keys.
func principal(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
