package probe

import (
	"context"
	"fmt"

	"github.com/SafeMPC/steamguard/internal/config"
	"github.com/SafeMPC/steamguard/internal/util/command"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	verboseFlag string = "verbose"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("probe",
		newAlive(),
	)
}

var errNotAlive = errors.New("steam session is not alive")

func newAlive() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alive",
		Short: "Checks whether the stored Steam session is still honored",
		Long: `Authenticates (reusing a stored session when possible) and probes Steam.
Exits non-zero if the session is not alive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			verbose, err := cmd.Flags().GetBool(verboseFlag)
			if err != nil {
				return err
			}

			cfg := config.DefaultClientConfigFromEnv()
			if verbose {
				cfg.Logger.Level = zerolog.DebugLevel
			}

			return command.WithClient(cmd.Context(), cfg, func(ctx context.Context, c *command.Client) error {
				alive, err := c.Session.IsAlive(ctx)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "steam_id=%s state=%s alive=%t\n", c.Session.SteamID(), c.Session.State(), alive)
				if !alive {
					return errNotAlive
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolP(verboseFlag, "v", false, "Show verbose output.")

	return cmd
}
