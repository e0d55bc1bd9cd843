package middleware

import "github.com/labstack/echo/v4"

const userIDKey = "user_id"

// UserID returns the authenticated user id stored by JWTAuth.
func UserID(c echo.Context) (string, bool) {
	v, ok := c.Get(userIDKey).(string)
	return v, ok && v != ""
}
