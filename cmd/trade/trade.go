package trade

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SafeMPC/steamguard/internal/config"
	"github.com/SafeMPC/steamguard/internal/util"
	"github.com/SafeMPC/steamguard/internal/util/command"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	partnerFlag   string = "partner"
	checkHoldFlag string = "check-hold"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("trade",
		newShow(),
		newAccept(),
		newDecline(),
		newCancel(),
	)
}

type offerArgs struct {
	OfferID   string `validate:"required,numeric"`
	PartnerID string `validate:"omitempty,numeric"`
}

func validateOffer(args offerArgs) error {
	if err := util.NewValidator().Validate(args); err != nil {
		return errors.Wrap(err, "invalid trade offer arguments")
	}
	return nil
}

func newShow() *cobra.Command {
	return &cobra.Command{
		Use:   "show <offer-id>",
		Short: "Prints a trade offer as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOffer(offerArgs{OfferID: args[0]}); err != nil {
				return err
			}

			return command.WithClient(cmd.Context(), config.DefaultClientConfigFromEnv(), func(ctx context.Context, c *command.Client) error {
				offer, err := c.Steam.GetTradeOffer(ctx, args[0])
				if err != nil {
					return err
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(offer)
			})
		},
	}
}

func newAccept() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <offer-id>",
		Short: "Accepts an incoming trade offer and confirms it",
		Long: `Accepts the trade offer <offer-id>. When Steam asks for a mobile confirmation,
the pending confirmation of the offer is allowed as well.

Offers whose items would be held in escrow are refused unless --check-hold=false.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partnerID, err := cmd.Flags().GetString(partnerFlag)
			if err != nil {
				return err
			}
			checkHold, err := cmd.Flags().GetBool(checkHoldFlag)
			if err != nil {
				return err
			}
			if err := validateOffer(offerArgs{OfferID: args[0], PartnerID: partnerID}); err != nil {
				return err
			}

			return command.WithClient(cmd.Context(), config.DefaultClientConfigFromEnv(), func(ctx context.Context, c *command.Client) error {
				result, err := c.Steam.AcceptTradeOffer(ctx, args[0], partnerID, checkHold)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "accepted trade offer %s (trade_id=%s confirmed=%t)\n", args[0], result.TradeID, result.Confirmation != nil)
				return nil
			})
		},
	}

	cmd.Flags().String(partnerFlag, "", "Account id or steam id of the partner (looked up when empty)")
	cmd.Flags().Bool(checkHoldFlag, true, "Refuse offers that would be held in escrow")

	return cmd
}

func newDecline() *cobra.Command {
	return &cobra.Command{
		Use:   "decline <offer-id>",
		Short: "Declines an incoming trade offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOffer(offerArgs{OfferID: args[0]}); err != nil {
				return err
			}

			return command.WithClient(cmd.Context(), config.DefaultClientConfigFromEnv(), func(ctx context.Context, c *command.Client) error {
				if err := c.Steam.DeclineTradeOffer(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "declined trade offer %s\n", args[0])
				return nil
			})
		},
	}
}

func newCancel() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <offer-id>",
		Short: "Cancels a trade offer sent by this account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOffer(offerArgs{OfferID: args[0]}); err != nil {
				return err
			}

			return command.WithClient(cmd.Context(), config.DefaultClientConfigFromEnv(), func(ctx context.Context, c *command.Client) error {
				if err := c.Steam.CancelTradeOffer(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "canceled trade offer %s\n", args[0])
				return nil
			})
		},
	}
}
