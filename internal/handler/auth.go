package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estate-ledger/internal/service"
)

// AuthHandler serves signup, login, token refresh and logout.
type AuthHandler struct {
	Accounts *service.Accounts
}

func NewAuthHandler(a *service.Accounts) *AuthHandler {
	if a == nil {
		panic("nil accounts passed to NewAuthHandler")
	}
	return &AuthHandler{Accounts: a}
}

// ----- DTOs -----

type signupReq struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

// Signup creates a USER account. No tokens are issued; the client logs
// in next.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	u, err := h.Accounts.Signup(c.Request().Context(), service.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, toUser(u))
}

// Login verifies credentials and returns a fresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	s, err := h.Accounts.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toSession(s.User, s.Tokens))
}

// Refresh rotates the refresh token. The presented token stops working.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	s, err := h.Accounts.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toSession(s.User, s.Tokens))
}

// Logout revokes the refresh token in the body.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	if err := h.Accounts.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll revokes every refresh token of the caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Accounts.LogoutAll(c.Request().Context(), uid); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the stored profile of the caller.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	u, err := h.Accounts.Me(c.Request().Context(), uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toUser(u))
}

type profileReq struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
}

// UpdateMe edits the caller's name and phone. An empty phone clears it.
func (h *AuthHandler) UpdateMe(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	var req profileReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	u, err := h.Accounts.UpdateProfile(c.Request().Context(), uid, service.ProfilePatch{
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toUser(u))
}
