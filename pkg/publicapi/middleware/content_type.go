package middleware

import (
	"github.com/labstack/echo/v4"
)

// SetContentType returns a middleware that sets the response content type
// for every route in a group.
func SetContentType(contentType string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set(echo.HeaderContentType, contentType)
			return next(c)
		}
	}
}
