package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/publicapi/apimodels"
)

func CustomHTTPErrorHandler(err error, c echo.Context) {
	var (
		code       int
		message    string
		errorCode  string
		component  string
		hint       string
		retryAfter time.Duration
	)

	switch e := err.(type) {

	case *models.BaseError:
		// If it is already our custom error, use its code and message
		code = e.HTTPStatusCode()
		message = e.Error()
		errorCode = string(e.Code())
		component = e.Component()
		hint = e.Hint()
		retryAfter = e.RetryAfter()

	case *echo.HTTPError:
		// This is needed, in case any other middleware throws an error. In
		// such a scenario we just use it as the error code and the message.
		// One such example being when request body size is larger than the
		// max size accepted
		code = e.Code
		message, _ = e.Message.(string)
		errorCode = string(models.InternalError)
		component = "APIServer"
		if c.Echo().Debug && e.Internal != nil {
			message += ". " + e.Internal.Error()
		}

	default:
		// In an ideal world this should never happen. Handlers should always
		// return a BaseError; anything else gets a generic message so
		// internals never leak.
		code = http.StatusInternalServerError
		message = "Internal server error"
		errorCode = string(models.InternalError)
		component = "Unknown"

		if c.Echo().Debug {
			message += ". " + err.Error()
		}
	}

	// Don't override the status code if it has already been set.
	// This is something that is advised by the echo framework.
	if !c.Response().Committed {
		apiError := apimodels.APIError{
			HTTPStatusCode: code,
			Message:        message,
			RequestID:      c.Response().Header().Get(echo.HeaderXRequestID),
			Code:           errorCode,
			Component:      component,
			Hint:           hint,
		}
		if retryAfter > 0 {
			seconds := int64(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			apiError.RetryAfterSeconds = seconds
			c.Response().Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		}
		var responseErr error
		if c.Request().Method == http.MethodHead {
			responseErr = c.NoContent(code)
		} else {
			responseErr = c.JSON(code, apiError)
		}
		if responseErr != nil {
			log.Error().Err(responseErr).
				Str("original_error", err.Error()).
				Msg("Failed to send error response")
		}
	}
}
