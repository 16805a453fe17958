package utils

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ExtractUserInfo reads the user ID and role placed in the context by the JWT
// middleware. Handlers behind the auth middleware can rely on both being set.
func ExtractUserInfo(c echo.Context) (userID, role string, err error) {
	userID, _ = c.Get("userID").(string)
	role, _ = c.Get("userRole").(string)
	if userID == "" {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication")
	}
	return userID, role, nil
}
