package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
	"github.com/iliyamo/estate-ledger/internal/service"
)

// AdminUsersHandler serves user management.
type AdminUsersHandler struct {
	Roles  *service.Roles
	Ledger *service.Ledger
}

func NewAdminUsersHandler(r *service.Roles, l *service.Ledger) *AdminUsersHandler {
	if r == nil || l == nil {
		panic("nil service passed to NewAdminUsersHandler")
	}
	return &AdminUsersHandler{Roles: r, Ledger: l}
}

type roleReq struct {
	Role string `json:"role"`
}

type transitionResp struct {
	User    userDTO    `json:"user"`
	From    model.Role `json:"from"`
	To      model.Role `json:"to"`
	Changed bool       `json:"changed"`
}

// List: GET /v1/admin/users?role=&page=&page_size=
func (h *AdminUsersHandler) List(c echo.Context) error {
	var f model.UserFilter
	if s := c.QueryParam("role"); s != "" {
		r, ok := model.ParseRole(s)
		if !ok {
			return fail(c, fmt.Errorf("%w: unknown role %q", apperr.ErrInvalidInput, s))
		}
		f.Role = &r
	}
	f.Page = pageFrom(c)
	users, total, err := h.Roles.ListUsers(c.Request().Context(), f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, newList(toUsers(users), total, f.Page))
}

type transitionFunc func(ctx context.Context, id uint64, role model.Role) (service.RoleTransition, error)

func (h *AdminUsersHandler) change(c echo.Context, fn transitionFunc) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req roleReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	t, err := fn(c.Request().Context(), id, model.Role(req.Role))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, transitionResp{User: toUser(t.User), From: t.From, To: t.To, Changed: !t.NoOp})
}

// Promote: POST /v1/admin/users/:id/promote {"role": "INVESTOR"}
func (h *AdminUsersHandler) Promote(c echo.Context) error {
	return h.change(c, h.Roles.Promote)
}

// Demote: POST /v1/admin/users/:id/demote {"role": "USER"}
func (h *AdminUsersHandler) Demote(c echo.Context) error {
	return h.change(c, h.Roles.Demote)
}

func (h *AdminUsersHandler) setActive(c echo.Context, active bool) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	u, err := h.Roles.SetActive(c.Request().Context(), id, active)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toUser(u))
}

// Disable: POST /v1/admin/users/:id/disable
func (h *AdminUsersHandler) Disable(c echo.Context) error { return h.setActive(c, false) }

// Enable: POST /v1/admin/users/:id/enable
func (h *AdminUsersHandler) Enable(c echo.Context) error { return h.setActive(c, true) }

// Portfolio: GET /v1/admin/users/:id/portfolio
func (h *AdminUsersHandler) Portfolio(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	pf, err := h.Ledger.GetPortfolio(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toPortfolio(pf))
}
