package httperrors

import (
	"net/http"
)

var (
	ErrBadRequestUnknownKind = NewHTTPError(http.StatusBadRequest, TypeGeneric, "Unknown confirmation kind, expected trade or market.")
	ErrBadRequestInvalidTime = NewHTTPError(http.StatusBadRequest, TypeGeneric, "Parameter at must be a unix timestamp.")
	ErrServiceUnavailable    = NewHTTPError(http.StatusServiceUnavailable, TypeGeneric, "Steam session is not alive.")
)
