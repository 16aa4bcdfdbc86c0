package market

import (
	"context"
	"fmt"

	"github.com/SafeMPC/steamguard/internal/config"
	"github.com/SafeMPC/steamguard/internal/util"
	"github.com/SafeMPC/steamguard/internal/util/command"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	appIDFlag     string = "appid"
	contextIDFlag string = "contextid"
	priceFlag     string = "price"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("market",
		newSell(),
	)
}

type sellArgs struct {
	AssetID   string `validate:"required,numeric"`
	AppID     string `validate:"required,numeric"`
	ContextID string `validate:"required,numeric"`
	Price     int    `validate:"gt=0"`
}

func newSell() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sell <asset-id>",
		Short: "Lists an inventory item on the community market",
		Long: `Creates a sell order for <asset-id> and allows its mobile confirmation.

--price is what the seller receives, in the wallet currency's smallest unit, after fees.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := cmd.Flags().GetString(appIDFlag)
			if err != nil {
				return err
			}
			contextID, err := cmd.Flags().GetString(contextIDFlag)
			if err != nil {
				return err
			}
			price, err := cmd.Flags().GetInt(priceFlag)
			if err != nil {
				return err
			}

			sell := sellArgs{AssetID: args[0], AppID: appID, ContextID: contextID, Price: price}
			if err := util.NewValidator().Validate(sell); err != nil {
				return errors.Wrap(err, "invalid sell order arguments")
			}

			return command.WithClient(cmd.Context(), config.DefaultClientConfigFromEnv(), func(ctx context.Context, c *command.Client) error {
				result, err := c.Steam.CreateSellOrder(ctx, sell.AssetID, sell.AppID, sell.ContextID, sell.Price)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "listed asset %s for %d (confirmed=%t)\n", sell.AssetID, sell.Price, result.Confirmation != nil)
				return nil
			})
		},
	}

	cmd.Flags().String(appIDFlag, "730", "App id the item belongs to")
	cmd.Flags().String(contextIDFlag, "2", "Inventory context id")
	cmd.Flags().Int(priceFlag, 0, "Price after fees in the smallest currency unit")
	_ = cmd.MarkFlagRequired(priceFlag)

	return cmd
}
