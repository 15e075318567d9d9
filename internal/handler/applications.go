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

// ApplicationsHandler serves investment applications: submission and
// edits by the applicant, listing and review by admins.
type ApplicationsHandler struct {
	Roles *service.Roles
}

func NewApplicationsHandler(r *service.Roles) *ApplicationsHandler {
	if r == nil {
		panic("nil roles passed to NewApplicationsHandler")
	}
	return &ApplicationsHandler{Roles: r}
}

type applicationReq struct {
	Motivation       *string          `json:"motivation"`
	InvestmentAmount *decimal.Decimal `json:"investment_amount"`
	Experience       *string          `json:"experience"`
}

type reviewReq struct {
	Status          string  `json:"status"`
	AdminNotes      *string `json:"admin_notes"`
	RejectionReason *string `json:"rejection_reason"`
}

type reviewResp struct {
	Application applicationDTO  `json:"application"`
	Transition  *transitionResp `json:"transition,omitempty"`
}

// Submit: POST /v1/me/applications
func (h *ApplicationsHandler) Submit(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	var req applicationReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	in := service.ApplicationInput{InvestmentAmount: req.InvestmentAmount, Experience: req.Experience}
	if req.Motivation != nil {
		in.Motivation = *req.Motivation
	}
	a, err := h.Roles.Apply(c.Request().Context(), uid, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, toApplication(a))
}

// Mine: GET /v1/me/applications
func (h *ApplicationsHandler) Mine(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	p := pageFrom(c)
	items, total, err := h.Roles.MyApplications(c.Request().Context(), uid, p)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, newList(toApplicationDetails(items), total, p))
}

// Edit: PATCH /v1/me/applications/:id
func (h *ApplicationsHandler) Edit(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req applicationReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	a, err := h.Roles.EditApplication(c.Request().Context(), uid, id, service.ApplicationPatch{
		Motivation:       req.Motivation,
		InvestmentAmount: req.InvestmentAmount,
		Experience:       req.Experience,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toApplication(a))
}

// List: GET /v1/admin/applications?status=&page=&page_size=
func (h *ApplicationsHandler) List(c echo.Context) error {
	var f model.ApplicationFilter
	if s := c.QueryParam("status"); s != "" {
		st, ok := model.ParseApplicationStatus(s)
		if !ok {
			return fail(c, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, s))
		}
		f.Status = &st
	}
	f.Page = pageFrom(c)
	items, total, err := h.Roles.ListApplications(c.Request().Context(), f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, newList(toApplicationDetails(items), total, f.Page))
}

// Get: GET /v1/admin/applications/:id
func (h *ApplicationsHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	d, err := h.Roles.GetApplication(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toApplicationDetail(d))
}

// Review: POST /v1/admin/applications/:id/review
func (h *ApplicationsHandler) Review(c echo.Context) error {
	reviewer, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req reviewReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	st, ok := model.ParseApplicationStatus(req.Status)
	if !ok {
		return fail(c, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, req.Status))
	}
	res, err := h.Roles.ReviewApplication(c.Request().Context(), reviewer, id, service.ApplicationReview{
		Status:          st,
		AdminNotes:      req.AdminNotes,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		return fail(c, err)
	}
	out := reviewResp{Application: toApplication(res.Application)}
	if t := res.Transition; !t.NoOp {
		out.Transition = &transitionResp{User: toUser(t.User), From: t.From, To: t.To, Changed: true}
	}
	return c.JSON(http.StatusOK, out)
}
