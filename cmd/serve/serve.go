package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SafeMPC/steamguard/internal/api/handlers"
	"github.com/SafeMPC/steamguard/internal/config"
	"github.com/SafeMPC/steamguard/internal/util/command"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the local confirmation agent",
		Long: `Starts an HTTP agent on SERVER_LISTEN_ADDRESS that serves Steam Guard codes,
lists pending confirmations and resolves them for the configured account.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	cfg := config.DefaultClientConfigFromEnv()

	return command.WithClient(ctx, cfg, func(ctx context.Context, c *command.Client) error {
		s := command.NewServer(c)
		handlers.AttachAllRoutes(s)

		errs := make(chan error, 1)
		go func() {
			errs <- s.Start()
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case err := <-errs:
			return err
		case <-quit:
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to gracefully shut down agent")
			return err
		}
		return nil
	})
}
