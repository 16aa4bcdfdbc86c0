package confirm

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/SafeMPC/steamguard/internal/config"
	"github.com/SafeMPC/steamguard/internal/steam"
	"github.com/SafeMPC/steamguard/internal/util/command"
	"github.com/spf13/cobra"
)

const kindFlag string = "kind"

func New() *cobra.Command {
	return command.NewSubcommandGroup("confirm",
		newList(),
		newResolve(steam.ActionAllow),
		newResolve(steam.ActionDeny),
	)
}

func newList() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists pending mobile confirmations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return command.WithClient(cmd.Context(), config.DefaultClientConfigFromEnv(), func(ctx context.Context, c *command.Client) error {
				confirmations, err := c.Executor.List(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCREATOR\tKIND\tCREATED\tDESCRIPTION")
				for _, conf := range confirmations {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", conf.ID, conf.CreatorID, conf.Kind, conf.CreatedAt.Format(time.RFC3339), conf.Description)
				}
				return w.Flush()
			})
		},
	}
}

func newResolve(action steam.ConfirmationAction) *cobra.Command {
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s <target-id>", action),
		Short: fmt.Sprintf("Resolves the pending confirmation of a trade offer or listing with %s", action),
		Long: fmt.Sprintf(`Finds the pending confirmation created by <target-id> (a trade offer id or
the asset id of a market listing) and submits %s for it.`, action),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawKind, err := cmd.Flags().GetString(kindFlag)
			if err != nil {
				return err
			}
			kind, err := steam.ParseConfirmationKind(rawKind)
			if err != nil {
				return err
			}

			return command.WithClient(cmd.Context(), config.DefaultClientConfigFromEnv(), func(ctx context.Context, c *command.Client) error {
				result, err := c.Executor.Resolve(ctx, args[0], action, kind)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s confirmation %s (%s)\n", result.Action, result.Confirmation.ID, result.Confirmation.Description)
				return nil
			})
		},
	}

	cmd.Flags().String(kindFlag, steam.KindTrade.String(), "Confirmation kind: trade or market")

	return cmd
}
