package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/SafeMPC/steamguard/internal/config"
	"github.com/SafeMPC/steamguard/internal/guard"
	"github.com/SafeMPC/steamguard/internal/steam"
	"github.com/SafeMPC/steamguard/internal/steamerr"
	"github.com/dropbox/godropbox/time2"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Session is the part of steam.Session the agent reports on and recovers.
type Session interface {
	IsAlive(ctx context.Context) (bool, error)
	Relogin(ctx context.Context) error
	State() steam.State
	SteamID() string
}

// Confirmations is the part of steam.ConfirmationExecutor the agent exposes.
type Confirmations interface {
	List(ctx context.Context) ([]steam.Confirmation, error)
	Resolve(ctx context.Context, targetID string, action steam.ConfirmationAction, kind steam.ConfirmationKind) (*steam.ConfirmationResult, error)
}

type Server struct {
	Config        config.Client
	Echo          *echo.Echo
	Router        *Router
	Clock         time2.Clock
	Registry      *prometheus.Registry
	Credentials   *guard.Credentials
	Session       Session
	Confirmations Confirmations

	reloginMu sync.Mutex
}

func NewServer(cfg config.Client, clock time2.Clock, registry *prometheus.Registry) *Server {
	if clock == nil {
		clock = time2.DefaultClock
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Server{
		Config:   cfg,
		Clock:    clock,
		Registry: registry,
	}
}

// Ready reports whether every component the handlers use is wired.
func (s *Server) Ready() bool {
	return s.Echo != nil &&
		s.Router != nil &&
		s.Credentials != nil &&
		s.Session != nil &&
		s.Confirmations != nil
}

// WithSession runs fn and, if it failed because Steam expired the session, logs in again
// and runs fn once more. Concurrent recoveries share a single relogin.
func (s *Server) WithSession(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if !steamerr.Is(err, steamerr.KindLoginRequired) {
		return err
	}

	if reloginErr := s.relogin(ctx); reloginErr != nil {
		log.Warn().Err(reloginErr).Msg("Failed to recover expired Steam session")
		return err
	}

	return fn(ctx)
}

func (s *Server) relogin(ctx context.Context) error {
	s.reloginMu.Lock()
	defer s.reloginMu.Unlock()

	switch s.Session.State() {
	case steam.StateAuthenticated:
		// Recovered by a concurrent request.
		return nil
	case steam.StateExpired:
		log.Info().Str("steam_id", s.Session.SteamID()).Msg("Steam session expired, logging in again")
		return s.Session.Relogin(ctx)
	default:
		return steamerr.Newf(steamerr.KindLoginRequired, "session is %s", s.Session.State())
	}
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	log.Info().Str("listen_address", s.Config.Server.ListenAddress).Msg("Starting agent")
	if err := s.Echo.Start(s.Config.Server.ListenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Warn().Msg("Shutting down agent")

	if s.Echo == nil {
		return nil
	}
	return s.Echo.Shutdown(ctx)
}
