package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
)

// HTTPHeaderResponseTime carries how long the server spent handling the
// request, for client-side latency correlation.
const HTTPHeaderResponseTime = "X-Response-Time"

// ResponseTime stamps every response with the handler's wall-clock duration.
// The header is written through the response's Before hook so it lands ahead
// of the first body byte.
func ResponseTime() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			c.Response().Before(func() {
				c.Response().Header().Set(HTTPHeaderResponseTime, time.Since(start).String())
			})
			return next(c)
		}
	}
}
