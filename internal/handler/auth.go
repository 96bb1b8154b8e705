package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/service"
)

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

// Register: create an account. No tokens are issued; the client logs in
// separately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	u, err := h.Auth.Register(c.Request().Context(), req.Email, req.Login, req.Password)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, toUser(u))
}

// Login: verify credentials and open a refresh session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	pair, err := h.Auth.Login(c.Request().Context(), service.LoginRequest{
		Login:     req.Login,
		Password:  req.Password,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toTokens(pair))
}

// Refresh: new access token for a live refresh session. The refresh token
// in the response is the one that was presented.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	pair, err := h.Auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toTokens(pair))
}

// Logout: revoke the presented refresh session. Unknown tokens are
// acknowledged the same way as live ones.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req logoutReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := h.Auth.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"detail": "logged out"})
}

// Profile: partial update of the caller's login and/or password
// (protected).
func (h *AuthHandler) Profile(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	var patch model.ProfilePatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(profileCheck{Login: patch.Login.Value, Password: patch.Password.Value}); err != nil {
		return badRequest(c, validationMessage(err))
	}
	u, err := h.Auth.UpdateProfile(c.Request().Context(), uid, patch)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toUser(u))
}

// History: the caller's logins, newest first (protected).
func (h *AuthHandler) History(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	hist, err := h.Auth.History(c.Request().Context(), uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toHistory(hist))
}
