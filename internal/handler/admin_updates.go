package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estate-ledger/internal/service"
)

// AdminUpdatesHandler serves news management.
type AdminUpdatesHandler struct {
	News *service.News
}

func NewAdminUpdatesHandler(n *service.News) *AdminUpdatesHandler {
	if n == nil {
		panic("nil news passed to NewAdminUpdatesHandler")
	}
	return &AdminUpdatesHandler{News: n}
}

type createUpdateReq struct {
	PropertyID *uint64 `json:"property_id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
}

type patchUpdateReq struct {
	PropertyID    *uint64 `json:"property_id"`
	ClearProperty bool    `json:"clear_property"`
	Title         *string `json:"title"`
	Content       *string `json:"content"`
}

// Create: POST /v1/admin/updates
func (h *AdminUpdatesHandler) Create(c echo.Context) error {
	var req createUpdateReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	u, err := h.News.CreateUpdate(c.Request().Context(), service.UpdateInput{
		PropertyID: req.PropertyID,
		Title:      req.Title,
		Content:    req.Content,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, toUpdate(u))
}

// Update: PATCH /v1/admin/updates/:id
func (h *AdminUpdatesHandler) Update(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req patchUpdateReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	u, err := h.News.EditUpdate(c.Request().Context(), id, service.UpdatePatch{
		Title:         req.Title,
		Content:       req.Content,
		PropertyID:    req.PropertyID,
		ClearProperty: req.ClearProperty,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toUpdate(u))
}

// Delete: DELETE /v1/admin/updates/:id
func (h *AdminUpdatesHandler) Delete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := h.News.DeleteUpdate(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
