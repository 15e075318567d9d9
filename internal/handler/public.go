package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
	"github.com/iliyamo/estate-ledger/internal/service"
)

// PublicHandler serves the browse endpoints open to every caller.
// Archived properties are never shown here.
type PublicHandler struct {
	Ledger *service.Ledger
	News   *service.News
}

func NewPublicHandler(l *service.Ledger, n *service.News) *PublicHandler {
	if l == nil || n == nil {
		panic("nil service passed to NewPublicHandler")
	}
	return &PublicHandler{Ledger: l, News: n}
}

func statusFilter(c echo.Context) (*model.PropertyStatus, error) {
	s := c.QueryParam("status")
	if s == "" {
		return nil, nil
	}
	st, ok := model.ParsePropertyStatus(s)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, s)
	}
	return &st, nil
}

// ListProperties: GET /v1/properties?status=&page=&page_size=
func (h *PublicHandler) ListProperties(c echo.Context) error {
	st, err := statusFilter(c)
	if err != nil {
		return fail(c, err)
	}
	page := pageFrom(c)
	items, total, err := h.Ledger.ListProperties(c.Request().Context(), model.PropertyFilter{Status: st, Page: page})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, newList(toProperties(items), total, page))
}

// GetProperty: GET /v1/properties/:id
func (h *PublicHandler) GetProperty(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	p, err := h.Ledger.GetProperty(c.Request().Context(), id, false)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toProperty(p))
}

// ListUpdates: GET /v1/updates?property_id=
func (h *PublicHandler) ListUpdates(c echo.Context) error {
	pid, err := queryID(c, "property_id")
	if err != nil {
		return fail(c, err)
	}
	var filter *uint64
	if pid != 0 {
		filter = &pid
	}
	page := pageFrom(c)
	items, total, err := h.News.ListUpdates(c.Request().Context(), filter, page)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, newList(toUpdates(items), total, page))
}
