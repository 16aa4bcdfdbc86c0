package httperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/SafeMPC/steamguard/internal/steamerr"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const TypeGeneric = "generic"

// HTTPError is the JSON body of every non-2xx agent response.
type HTTPError struct {
	Code     int    `json:"status"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Internal error  `json:"-"`
}

func NewHTTPError(code int, errorType string, title string) *HTTPError {
	return &HTTPError{
		Code:  code,
		Type:  errorType,
		Title: title,
	}
}

func NewFromEcho(e *echo.HTTPError) *HTTPError {
	return &HTTPError{
		Code:     e.Code,
		Type:     TypeGeneric,
		Title:    fmt.Sprint(e.Message),
		Internal: e.Internal,
	}
}

// NewFromSteamError maps an error kind to its HTTP status.
func NewFromSteamError(err error) *HTTPError {
	kind := steamerr.KindOf(err)

	var code int
	switch kind {
	case steamerr.KindConfirmationNotFound:
		code = http.StatusNotFound
	case steamerr.KindRateLimited, steamerr.KindTooManyRequests:
		code = http.StatusTooManyRequests
	case steamerr.KindLoginRequired:
		code = http.StatusUnauthorized
	case steamerr.KindConfirmationRejected, steamerr.KindTradeHold:
		code = http.StatusConflict
	case steamerr.KindInvalidSecret:
		code = http.StatusBadRequest
	default:
		code = http.StatusBadGateway
	}

	return &HTTPError{
		Code:     code,
		Type:     kind.String(),
		Title:    err.Error(),
		Internal: err,
	}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTPError %d (%s): %s", e.Code, e.Type, e.Title)
}

func (e *HTTPError) Unwrap() error {
	return e.Internal
}

// HTTPErrorHandler renders every error returned by a handler as HTTPError.
func HTTPErrorHandler(err error, c echo.Context) {
	var httpErr *HTTPError
	var echoErr *echo.HTTPError

	switch {
	case errors.As(err, &httpErr):
	case errors.As(err, &echoErr):
		httpErr = NewFromEcho(echoErr)
	default:
		httpErr = NewFromSteamError(err)
	}

	if httpErr.Code >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", httpErr.Code).Str("path", c.Path()).Msg("Request failed")
	}

	if c.Response().Committed {
		return
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(httpErr.Code)
	} else {
		err = c.JSON(httpErr.Code, httpErr)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to write error response")
	}
}
