package api

import (
	"github.com/SafeMPC/steamguard/internal/api/httperrors"
	"github.com/SafeMPC/steamguard/internal/util"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

type Router struct {
	Routes     []*echo.Route
	Root       *echo.Group
	Management *echo.Group
	APIV1      *echo.Group
}

// InitRouter creates the echo instance with its middleware and route groups.
// Handlers attach themselves to the groups afterwards.
func (s *Server) InitRouter() {
	s.Echo = echo.New()
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.HTTPErrorHandler = httperrors.HTTPErrorHandler
	s.Echo.Validator = util.NewValidator()

	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestID())
	s.Echo.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "steamguard",
		Subsystem:  "agent",
		Registerer: s.Registry,
	}))
	s.Echo.Use(requestLogger())

	s.Router = &Router{
		Routes:     nil,
		Root:       s.Echo.Group(""),
		Management: s.Echo.Group("/-"),
		APIV1:      s.Echo.Group("/api/v1"),
	}

	s.Router.Routes = append(s.Router.Routes,
		s.Router.Root.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: s.Registry})),
	)
}

// requestLogger attaches a request scoped logger to the request context and logs every
// finished request.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			l := log.With().
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Logger()
			c.SetRequest(req.WithContext(l.WithContext(req.Context())))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			util.LogFromEchoContext(c).Debug().Int("status", c.Response().Status).Msg("Request handled")
			return nil
		}
	}
}
