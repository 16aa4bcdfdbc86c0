package cmd

import (
	"fmt"
	"os"

	"github.com/SafeMPC/steamguard/cmd/code"
	"github.com/SafeMPC/steamguard/cmd/confirm"
	"github.com/SafeMPC/steamguard/cmd/market"
	"github.com/SafeMPC/steamguard/cmd/probe"
	"github.com/SafeMPC/steamguard/cmd/serve"
	"github.com/SafeMPC/steamguard/cmd/trade"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "steamguard",
	Short: "Steam mobile authenticator",
	Long: `Generates Steam Guard codes and resolves mobile confirmations for one account.

Configuration is read from the environment (STEAM_USERNAME, STEAM_PASSWORD,
STEAM_CREDENTIALS_FILE, ...) and an optional .env file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(
		code.New(),
		confirm.New(),
		market.New(),
		probe.New(),
		serve.New(),
		trade.New(),
	)
}
