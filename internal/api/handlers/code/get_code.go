package code

import (
	"net/http"
	"strconv"
	"time"

	"github.com/SafeMPC/steamguard/internal/api"
	"github.com/SafeMPC/steamguard/internal/api/httperrors"
	"github.com/SafeMPC/steamguard/internal/guard"
	"github.com/SafeMPC/steamguard/internal/util"
	"github.com/labstack/echo/v4"
)

type getCodeParams struct {
	At string `query:"at" validate:"omitempty,numeric"`
}

type codeResponse struct {
	Code      string    `json:"code"`
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
}

func GetCodeRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/code", getCodeHandler(s))
}

func getCodeHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		var params getCodeParams
		if err := util.BindAndValidate(c, &params); err != nil {
			return httperrors.ErrBadRequestInvalidTime
		}

		at := s.Clock.Now()
		if params.At != "" {
			unix, err := strconv.ParseInt(params.At, 10, 64)
			if err != nil || unix < 0 {
				return httperrors.ErrBadRequestInvalidTime
			}
			at = time.Unix(unix, 0)
		}

		code, err := guard.CodeAt(s.Credentials.SharedSecret(), at)
		if err != nil {
			return err
		}

		return c.JSON(http.StatusOK, codeResponse{
			Code:      code.Value,
			ValidFrom: code.ValidFrom.UTC(),
			ValidTo:   code.ValidTo.UTC(),
		})
	}
}
