package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
	"github.com/iliyamo/estate-ledger/internal/service"
)

// AdminInvestmentsHandler serves investment assignment and valuation.
type AdminInvestmentsHandler struct {
	Ledger *service.Ledger
}

func NewAdminInvestmentsHandler(l *service.Ledger) *AdminInvestmentsHandler {
	if l == nil {
		panic("nil ledger passed to NewAdminInvestmentsHandler")
	}
	return &AdminInvestmentsHandler{Ledger: l}
}

// Amounts accept a JSON string or number; strings keep full precision.
type assignReq struct {
	UserID       uint64           `json:"user_id"`
	PropertyID   uint64           `json:"property_id"`
	InitialValue *decimal.Decimal `json:"initial_value"`
}

type valuationReq struct {
	CurrentValue *decimal.Decimal `json:"current_value"`
}

type assignResp struct {
	Investment           positionDTO `json:"investment"`
	PropertyTransitioned bool        `json:"property_transitioned"`
}

// Assign: POST /v1/admin/investments
func (h *AdminInvestmentsHandler) Assign(c echo.Context) error {
	var req assignReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	if req.UserID == 0 || req.PropertyID == 0 {
		return fail(c, fmt.Errorf("%w: user_id and property_id are required", apperr.ErrInvalidInput))
	}
	if req.InitialValue == nil {
		return fail(c, fmt.Errorf("%w: initial_value is required", apperr.ErrInvalidValue))
	}
	res, err := h.Ledger.AssignInvestment(c.Request().Context(), req.UserID, req.PropertyID, *req.InitialValue)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, assignResp{
		Investment:           toPosition(res.Position),
		PropertyTransitioned: res.PropertyTransitioned,
	})
}

// List: GET /v1/admin/investments?user_id=&property_id=
func (h *AdminInvestmentsHandler) List(c echo.Context) error {
	uid, err := queryID(c, "user_id")
	if err != nil {
		return fail(c, err)
	}
	pid, err := queryID(c, "property_id")
	if err != nil {
		return fail(c, err)
	}
	items, err := h.Ledger.ListInvestments(c.Request().Context(), model.InvestmentFilter{UserID: uid, PropertyID: pid})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": toPositions(items)})
}

// Valuation: PATCH /v1/admin/investments/:id/valuation
func (h *AdminInvestmentsHandler) Valuation(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req valuationReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	if req.CurrentValue == nil {
		return fail(c, fmt.Errorf("%w: current_value is required", apperr.ErrInvalidValue))
	}
	pos, err := h.Ledger.UpdateValuation(c.Request().Context(), id, *req.CurrentValue)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toPosition(pos))
}
