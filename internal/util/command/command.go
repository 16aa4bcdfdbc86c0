package command

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/SafeMPC/steamguard/internal/api"
	"github.com/SafeMPC/steamguard/internal/config"
	"github.com/SafeMPC/steamguard/internal/guard"
	"github.com/SafeMPC/steamguard/internal/metrics"
	"github.com/SafeMPC/steamguard/internal/steam"
	"github.com/SafeMPC/steamguard/internal/steamerr"
	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Client bundles everything a command needs to act on the configured account.
type Client struct {
	Config      config.Client
	Clock       time2.Clock
	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	Credentials *guard.Credentials
	Session     *steam.Session
	Executor    *steam.ConfirmationExecutor
	Steam       *steam.Client
}

// SetupLogger applies the logger config to the global zerolog logger.
func SetupLogger(cfg config.Logger) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(cfg.Level)
	if cfg.PrettyPrintConsole {
		log.Logger = log.Output(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stderr
			w.TimeFormat = "15:04:05"
		}))
	}
}

// LoadCredentials reads the authenticator document configured in cfg.
func LoadCredentials(cfg config.Steam) (*guard.Credentials, error) {
	if cfg.CredentialsFile == "" {
		return nil, steamerr.New(steamerr.KindInvalidSecret, "no credentials file configured")
	}

	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, steamerr.Wrapf(steamerr.KindInvalidSecret, err, "failed to read credentials file %s", cfg.CredentialsFile)
	}

	return guard.LoadCredentials(data)
}

// NewClient wires a session and confirmation executor for cfg without contacting Steam.
func NewClient(ctx context.Context, cfg config.Client) (*Client, error) {
	creds, err := LoadCredentials(cfg.Steam)
	if err != nil {
		return nil, err
	}

	registry, m, err := api.NewMetrics()
	if err != nil {
		return nil, errors.Wrap(err, "failed to register metrics")
	}

	store, err := api.NewSessionStore(ctx, cfg.Redis)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session store")
	}

	clock := api.NewClock()
	session := steam.NewSession(cfg.Steam,
		steam.WithClock(clock),
		steam.WithStore(store),
		steam.WithMetrics(m),
	)
	executor := steam.NewConfirmationExecutor(session, creds, cfg.Steam.CommunityURL, clock, m)

	return &Client{
		Config:      cfg,
		Clock:       clock,
		Registry:    registry,
		Metrics:     m,
		Credentials: creds,
		Session:     session,
		Executor:    executor,
		Steam:       steam.NewClient(session, executor),
	}, nil
}

// WithClient sets up logging, authenticates (reusing a stored session when possible) and
// runs f with the ready client.
func WithClient(ctx context.Context, cfg config.Client, f func(ctx context.Context, c *Client) error) error {
	SetupLogger(cfg.Logger)

	if cfg.Steam.Username == "" || cfg.Steam.Password == "" {
		return steamerr.New(steamerr.KindInvalidCredentials, "STEAM_USERNAME and STEAM_PASSWORD are required")
	}

	c, err := NewClient(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize client")
		return err
	}

	if err := c.Session.Resume(ctx, cfg.Steam.Username, cfg.Steam.Password, c.Credentials); err != nil {
		log.Error().Err(err).Str("username", cfg.Steam.Username).Msg("Failed to authenticate")
		return err
	}

	return f(ctx, c)
}

// NewServer returns an agent server routed over the client's session.
func NewServer(c *Client) *api.Server {
	s := api.NewServer(c.Config, c.Clock, c.Registry)
	s.Credentials = c.Credentials
	s.Session = c.Session
	s.Confirmations = c.Executor
	s.InitRouter()
	return s
}

func NewSubcommandGroup(name string, subCommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s <subcommand>", name),
		Short: fmt.Sprintf("%s related subcommands", name),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(subCommands...)

	return cmd
}
