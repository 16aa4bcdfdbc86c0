package confirmations

import (
	"context"
	"net/http"
	"time"

	"github.com/SafeMPC/steamguard/internal/api"
	"github.com/SafeMPC/steamguard/internal/steam"
	"github.com/SafeMPC/steamguard/internal/util"
	"github.com/labstack/echo/v4"
)

type confirmationResponse struct {
	ID          string    `json:"id"`
	CreatorID   string    `json:"creator_id"`
	Kind        string    `json:"kind"`
	TypeName    string    `json:"type_name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func newConfirmationResponse(c steam.Confirmation) confirmationResponse {
	return confirmationResponse{
		ID:          c.ID,
		CreatorID:   c.CreatorID,
		Kind:        c.Kind.String(),
		TypeName:    c.TypeName,
		Description: c.Description,
		CreatedAt:   c.CreatedAt.UTC(),
	}
}

func GetConfirmationsRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/confirmations", getConfirmationsHandler(s))
}

func getConfirmationsHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var pending []steam.Confirmation
		err := s.WithSession(ctx, func(ctx context.Context) error {
			var err error
			pending, err = s.Confirmations.List(ctx)
			return err
		})
		if err != nil {
			log.Debug().Err(err).Msg("Failed to list confirmations")
			return err
		}

		response := make([]confirmationResponse, 0, len(pending))
		for _, conf := range pending {
			response = append(response, newConfirmationResponse(conf))
		}

		return c.JSON(http.StatusOK, response)
	}
}
