// Package router registers the HTTP routes of the auth service on an Echo
// instance.
package router

import (
	"net"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/handler"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/utils"
)

// NewEcho returns an Echo instance with request validation and a client IP
// policy. With no trusted proxies the client IP is the TCP peer address
// and forwarding headers are ignored; otherwise X-Forwarded-For is walked
// from the right through the trusted networks only.
func NewEcho(trustedProxies []*net.IPNet) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.IPExtractor = ipExtractor(trustedProxies)
	return e
}

func ipExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// RegisterRoutes registers routes that need no authentication or
// dependencies. Currently only the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the /auth group. limiter guards the credential
// endpoints (register, login, refresh); profile and history require a
// bearer access token verified by issuer.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, issuer *utils.TokenIssuer, limiter echo.MiddlewareFunc) {
	g := e.Group("/auth")
	g.POST("/register", a.Register, limiter)
	g.POST("/login", a.Login, limiter)
	g.POST("/refresh", a.Refresh, limiter)
	// logout only needs the refresh token in the body
	g.POST("/logout", a.Logout)

	bearer := middleware.BearerAuth(issuer)
	g.PUT("/profile", a.Profile, bearer)
	g.GET("/history", a.History, bearer)
}

// RegisterRoles registers the /roles group. When adminRole is empty the
// endpoints are open to any caller; otherwise they require a bearer token
// carrying adminRole.
func RegisterRoles(e *echo.Echo, r *handler.RoleHandler, issuer *utils.TokenIssuer, adminRole string) {
	g := e.Group("/roles")
	if adminRole != "" {
		g.Use(middleware.BearerAuth(issuer), middleware.RequireRole(adminRole))
	}
	g.POST("", r.Create)
	g.GET("", r.List)
	g.PUT("/:id", r.Update)
	g.DELETE("/:id", r.Delete)
	g.POST("/assign", r.Assign)
	g.POST("/revoke", r.Revoke)
	g.POST("/check", r.Check)
}
