package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/utils"
)

// Context keys set by BearerAuth.
const (
	ClaimsKey = "claims"
	UserIDKey = "user_id"
)

// BearerAuth returns an Echo middleware that validates the access token in
// the Authorization header and stores its claims and subject in the
// request context. Every failure (missing header, wrong scheme, bad
// signature, expired token, unparsable subject) produces the same 401
// body so callers learn nothing about why a token was rejected.
func BearerAuth(issuer *utils.TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return unauthorized(c)
			}
			claims, err := issuer.Verify(raw)
			if err != nil {
				return unauthorized(c)
			}
			uid, err := claims.UserID()
			if err != nil {
				return unauthorized(c)
			}
			c.Set(ClaimsKey, claims)
			c.Set(UserIDKey, uid)
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
}
