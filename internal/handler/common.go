package handler

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/middleware"
	"github.com/iliyamo/estate-ledger/internal/model"
)

// fail writes err in the shared error body.
func fail(c echo.Context, err error) error { return middleware.WriteError(c, err) }

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return fmt.Errorf("%w: invalid body", apperr.ErrInvalidInput)
	}
	return nil
}

// paramID parses a positive numeric path parameter.
func paramID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s", apperr.ErrInvalidInput, name)
	}
	return id, nil
}

// queryID parses an optional numeric query parameter; 0 means absent.
func queryID(c echo.Context, name string) (uint64, error) {
	s := c.QueryParam(name)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", apperr.ErrInvalidInput, name)
	}
	return id, nil
}

func pageFrom(c echo.Context) model.Page {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	return model.Page{Page: page, PageSize: size}.Normalize()
}

// caller returns the authenticated user id. Routes that reach a handler
// calling it are guarded by a capability PUBLIC lacks.
func caller(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, apperr.ErrUnauthenticated
	}
	return id, nil
}

type listResp[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func newList[T any](items []T, total int, p model.Page) listResp[T] {
	if items == nil {
		items = []T{}
	}
	return listResp[T]{Items: items, Total: total, Page: p.Page, PageSize: p.PageSize}
}
