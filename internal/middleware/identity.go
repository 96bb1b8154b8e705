package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/utils"
)

// UserID returns the authenticated user id stored by BearerAuth.
func UserID(c echo.Context) (uint64, bool) {
	uid, ok := c.Get(UserIDKey).(uint64)
	return uid, ok && uid != 0
}

// Claims returns the verified access token claims stored by BearerAuth.
func Claims(c echo.Context) (*utils.AccessClaims, bool) {
	cl, ok := c.Get(ClaimsKey).(*utils.AccessClaims)
	return cl, ok && cl != nil
}

// userKey identifies the caller for rate limiting; "anon" when the route
// is not behind BearerAuth.
func userKey(c echo.Context) string {
	if uid, ok := UserID(c); ok {
		return strconv.FormatUint(uid, 10)
	}
	return "anon"
}
