package handlers

import (
	"github.com/SafeMPC/steamguard/internal/api"
	"github.com/SafeMPC/steamguard/internal/api/handlers/code"
	"github.com/SafeMPC/steamguard/internal/api/handlers/common"
	"github.com/SafeMPC/steamguard/internal/api/handlers/confirmations"
	"github.com/labstack/echo/v4"
)

func AttachAllRoutes(s *api.Server) {
	s.Router.Routes = append(s.Router.Routes, []*echo.Route{
		code.GetCodeRoute(s),
		common.GetHealthyRoute(s),
		common.GetReadyRoute(s),
		confirmations.GetConfirmationsRoute(s),
		confirmations.PostAllowConfirmationRoute(s),
		confirmations.PostDenyConfirmationRoute(s),
	}...)
}
