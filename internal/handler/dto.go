package handler

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/service"
)

// ----- requests -----

type registerReq struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Login    string `json:"login" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

type loginReq struct {
	Login    string `json:"login" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=128"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type logoutReq struct {
	RefreshToken string `json:"refresh_token"`
}

// profileCheck holds the values of a profile patch for length validation;
// presence is tracked by model.ProfilePatch itself.
type profileCheck struct {
	Login    string `json:"login" validate:"omitempty,min=3,max=50"`
	Password string `json:"password" validate:"omitempty,min=6,max=128"`
}

type roleReq struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
}

type membershipReq struct {
	Login        string `json:"login" validate:"required"`
	RequiredRole string `json:"required_role" validate:"required"`
}

// ----- responses -----

type roleResp struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

type userResp struct {
	ID    uint64     `json:"id"`
	Email string     `json:"email"`
	Login string     `json:"login"`
	Roles []roleResp `json:"roles"`
}

type tokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type historyResp struct {
	ID        uint64    `json:"id"`
	IPAddress *string   `json:"ip_address"`
	UserAgent *string   `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

func toRole(r model.Role) roleResp {
	return roleResp{ID: r.ID, Name: r.Name}
}

func toRoles(rs []model.Role) []roleResp {
	out := make([]roleResp, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRole(r))
	}
	return out
}

func toUser(u model.User) userResp {
	return userResp{ID: u.ID, Email: u.Email, Login: u.Login, Roles: toRoles(u.Roles)}
}

func toTokens(p service.TokenPair) tokenResp {
	return tokenResp{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, TokenType: "bearer", ExpiresIn: p.ExpiresIn}
}

func toHistory(hs []model.LoginHistory) []historyResp {
	out := make([]historyResp, 0, len(hs))
	for _, h := range hs {
		out = append(out, historyResp{ID: h.ID, IPAddress: h.IPAddress, UserAgent: h.UserAgent, CreatedAt: h.CreatedAt})
	}
	return out
}

// bind decodes and validates the request body into req. Failures are
// returned as service.ErrInvalidInput so fail maps them to 400.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: invalid body", service.ErrInvalidInput)
	}
	if err := c.Validate(req); err != nil {
		return fmt.Errorf("%w: %s", service.ErrInvalidInput, validationMessage(err))
	}
	return nil
}
