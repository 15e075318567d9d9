package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estate-ledger/internal/service"
)

// InvestorHandler serves the caller's own investments. Ownership is
// always taken from the access token, never from the request.
type InvestorHandler struct {
	Ledger *service.Ledger
	News   *service.News
}

func NewInvestorHandler(l *service.Ledger, n *service.News) *InvestorHandler {
	if l == nil || n == nil {
		panic("nil service passed to NewInvestorHandler")
	}
	return &InvestorHandler{Ledger: l, News: n}
}

// Investments: GET /v1/investor/investments
func (h *InvestorHandler) Investments(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	pf, err := h.Ledger.GetPortfolio(c.Request().Context(), uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": toPositions(pf.Positions)})
}

// Investment: GET /v1/investor/investments/:id
func (h *InvestorHandler) Investment(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	pos, err := h.Ledger.GetInvestment(c.Request().Context(), uid, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toPosition(pos))
}

// Portfolio: GET /v1/investor/portfolio/summary
func (h *InvestorHandler) Portfolio(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	pf, err := h.Ledger.GetPortfolio(c.Request().Context(), uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toPortfolio(pf))
}

// Updates: GET /v1/investor/updates returns general news plus news of
// every held property.
func (h *InvestorHandler) Updates(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	page := pageFrom(c)
	items, total, err := h.News.InvestorFeed(c.Request().Context(), uid, page)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, newList(toUpdates(items), total, page))
}
