package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estate-ledger/internal/model"
	"github.com/iliyamo/estate-ledger/internal/service"
)

// AdminPropertiesHandler serves property management, archived rows
// included.
type AdminPropertiesHandler struct {
	Ledger *service.Ledger
}

func NewAdminPropertiesHandler(l *service.Ledger) *AdminPropertiesHandler {
	if l == nil {
		panic("nil ledger passed to NewAdminPropertiesHandler")
	}
	return &AdminPropertiesHandler{Ledger: l}
}

type createPropertyReq struct {
	Title       string   `json:"title"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	ImageURLs   []string `json:"image_urls"`
}

type patchPropertyReq struct {
	Title       *string   `json:"title"`
	Location    *string   `json:"location"`
	Description *string   `json:"description"`
	ImageURLs   *[]string `json:"image_urls"`
}

// Create: POST /v1/admin/properties
func (h *AdminPropertiesHandler) Create(c echo.Context) error {
	var req createPropertyReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	p, err := h.Ledger.CreateProperty(c.Request().Context(), service.PropertyInput{
		Title:       req.Title,
		Location:    req.Location,
		Description: req.Description,
		ImageURLs:   req.ImageURLs,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, toProperty(p))
}

// List: GET /v1/admin/properties?status=&archived=true
func (h *AdminPropertiesHandler) List(c echo.Context) error {
	st, err := statusFilter(c)
	if err != nil {
		return fail(c, err)
	}
	archived, _ := strconv.ParseBool(c.QueryParam("archived"))
	page := pageFrom(c)
	items, total, err := h.Ledger.ListProperties(c.Request().Context(), model.PropertyFilter{
		Status:          st,
		IncludeArchived: archived,
		Page:            page,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, newList(toProperties(items), total, page))
}

// Update: PATCH /v1/admin/properties/:id
func (h *AdminPropertiesHandler) Update(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req patchPropertyReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	p, err := h.Ledger.UpdateProperty(c.Request().Context(), id, service.PropertyPatch{
		Title:       req.Title,
		Location:    req.Location,
		Description: req.Description,
		ImageURLs:   req.ImageURLs,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toProperty(p))
}

// Delete: DELETE /v1/admin/properties/:id. Properties with investments
// answer 409; archive them instead.
func (h *AdminPropertiesHandler) Delete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := h.Ledger.DeleteProperty(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type propertyAction func(ctx context.Context, id uint64) (model.Property, error)

func (h *AdminPropertiesHandler) act(c echo.Context, fn propertyAction) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	p, err := fn(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toProperty(p))
}

// Archive: POST /v1/admin/properties/:id/archive
func (h *AdminPropertiesHandler) Archive(c echo.Context) error {
	return h.act(c, h.Ledger.ArchiveProperty)
}

// Restore: POST /v1/admin/properties/:id/restore
func (h *AdminPropertiesHandler) Restore(c echo.Context) error {
	return h.act(c, h.Ledger.RestoreProperty)
}

// MarkSold: POST /v1/admin/properties/:id/sold
func (h *AdminPropertiesHandler) MarkSold(c echo.Context) error {
	return h.act(c, h.Ledger.MarkSold)
}
