package common

import (
	"net/http"

	"github.com/SafeMPC/steamguard/internal/api"
	"github.com/SafeMPC/steamguard/internal/api/httperrors"
	"github.com/SafeMPC/steamguard/internal/util"
	"github.com/labstack/echo/v4"
)

type readyResponse struct {
	State   string `json:"state"`
	SteamID string `json:"steam_id,omitempty"`
	Alive   bool   `json:"alive"`
}

func GetReadyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/ready", getReadyHandler(s))
}

// getReadyHandler probes Steam and answers 503 unless the session is still honored.
func getReadyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		alive, err := s.Session.IsAlive(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Session probe failed")
			return httperrors.ErrServiceUnavailable
		}
		if !alive {
			return httperrors.ErrServiceUnavailable
		}

		return c.JSON(http.StatusOK, readyResponse{
			State:   s.Session.State().String(),
			SteamID: s.Session.SteamID(),
			Alive:   alive,
		})
	}
}
