package confirmations

import (
	"context"
	"net/http"

	"github.com/SafeMPC/steamguard/internal/api"
	"github.com/SafeMPC/steamguard/internal/api/httperrors"
	"github.com/SafeMPC/steamguard/internal/steam"
	"github.com/SafeMPC/steamguard/internal/util"
	"github.com/labstack/echo/v4"
)

type postConfirmationActionParams struct {
	TargetID string `param:"target_id" validate:"required,numeric"`
	Kind     string `query:"kind"`
}

type actionResponse struct {
	Action       string               `json:"action"`
	Confirmation confirmationResponse `json:"confirmation"`
}

func PostAllowConfirmationRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/confirmations/:target_id/allow", postConfirmationActionHandler(s, steam.ActionAllow))
}

func PostDenyConfirmationRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/confirmations/:target_id/deny", postConfirmationActionHandler(s, steam.ActionDeny))
}

// Kind defaults to trade.
func postConfirmationActionHandler(s *api.Server, action steam.ConfirmationAction) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var params postConfirmationActionParams
		if err := util.BindAndValidate(c, &params); err != nil {
			return err
		}

		kind := steam.KindTrade
		if params.Kind != "" {
			parsed, err := steam.ParseConfirmationKind(params.Kind)
			if err != nil {
				return httperrors.ErrBadRequestUnknownKind
			}
			kind = parsed
		}

		var result *steam.ConfirmationResult
		err := s.WithSession(ctx, func(ctx context.Context) error {
			var err error
			result, err = s.Confirmations.Resolve(ctx, params.TargetID, action, kind)
			return err
		})
		if err != nil {
			log.Info().Err(err).Str("target_id", params.TargetID).Str("action", action.String()).Msg("Failed to resolve confirmation")
			return err
		}

		return c.JSON(http.StatusOK, actionResponse{
			Action:       result.Action.String(),
			Confirmation: newConfirmationResponse(result.Confirmation),
		})
	}
}
