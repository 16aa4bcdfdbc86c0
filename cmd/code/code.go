package code

import (
	"fmt"
	"time"

	"github.com/SafeMPC/steamguard/internal/config"
	"github.com/SafeMPC/steamguard/internal/guard"
	"github.com/SafeMPC/steamguard/internal/util/command"
	"github.com/spf13/cobra"
)

const (
	atFlag      string = "at"
	verboseFlag string = "verbose"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Prints the current Steam Guard code",
		Long: `Prints the Steam Guard code for the configured shared secret.

The code does not require a login; only the credentials file is read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return codeCmdFunc(cmd)
		},
	}

	cmd.Flags().Int64(atFlag, 0, "Unix timestamp to generate the code for (default now)")
	cmd.Flags().BoolP(verboseFlag, "v", false, "Print the validity window as well")

	return cmd
}

func codeCmdFunc(cmd *cobra.Command) error {
	cfg := config.DefaultClientConfigFromEnv()
	command.SetupLogger(cfg.Logger)

	creds, err := command.LoadCredentials(cfg.Steam)
	if err != nil {
		return err
	}

	at := time.Now()
	if cmd.Flags().Changed(atFlag) {
		unix, err := cmd.Flags().GetInt64(atFlag)
		if err != nil {
			return err
		}
		at = time.Unix(unix, 0)
	}

	code, err := guard.CodeAt(creds.SharedSecret(), at)
	if err != nil {
		return err
	}

	verbose, err := cmd.Flags().GetBool(verboseFlag)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (valid %s - %s)\n", code.Value, code.ValidFrom.Format(time.RFC3339), code.ValidTo.Format(time.RFC3339))
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), code.Value)
	return nil
}
