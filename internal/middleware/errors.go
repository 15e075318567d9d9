package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estate-ledger/internal/apperr"
)

// WriteError renders err as {"error": code, "message": text} with the
// status of its kind. Errors outside the taxonomy are logged and hidden
// behind a generic message.
func WriteError(c echo.Context, err error) error {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if !apperr.Known(err) {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		msg = "internal error"
	}
	return c.JSON(status, echo.Map{"error": apperr.Code(err), "message": msg})
}
