package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/service"
)

// RoleHandler serves the /roles endpoints.
type RoleHandler struct {
	Roles *service.RoleService
}

func NewRoleHandler(roles *service.RoleService) *RoleHandler {
	return &RoleHandler{Roles: roles}
}

func (h *RoleHandler) Create(c echo.Context) error {
	var req roleReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	role, err := h.Roles.CreateRole(c.Request().Context(), req.Name)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, toRole(role))
}

func (h *RoleHandler) List(c echo.Context) error {
	roles, err := h.Roles.ListRoles(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toRoles(roles))
}

func (h *RoleHandler) Update(c echo.Context) error {
	id, ok := roleID(c)
	if !ok {
		return badRequest(c, "invalid role id")
	}
	var req roleReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	role, err := h.Roles.UpdateRole(c.Request().Context(), id, req.Name)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toRole(role))
}

func (h *RoleHandler) Delete(c echo.Context) error {
	id, ok := roleID(c)
	if !ok {
		return badRequest(c, "invalid role id")
	}
	if err := h.Roles.DeleteRole(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *RoleHandler) Assign(c echo.Context) error {
	var req membershipReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	if err := h.Roles.AssignRole(c.Request().Context(), req.Login, req.RequiredRole); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"detail": "role assigned"})
}

func (h *RoleHandler) Revoke(c echo.Context) error {
	var req membershipReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	if err := h.Roles.RevokeRole(c.Request().Context(), req.Login, req.RequiredRole); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"detail": "role revoked"})
}

// Check reports whether login currently holds required_role. It reads the
// store, not a token, so the answer reflects changes immediately.
func (h *RoleHandler) Check(c echo.Context) error {
	var req membershipReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	allowed, err := h.Roles.CheckAccess(c.Request().Context(), req.Login, req.RequiredRole)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"login":         req.Login,
		"required_role": req.RequiredRole,
		"allowed":       allowed,
	})
}

func roleID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}
