package cmd

import (
	"fmt"

	"github.com/goliatone/go-connections/security"
	"github.com/spf13/cobra"
)

func newGenerateSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-secret",
		Short: "Print a random 256-bit encryption secret",
		Long:  "Print a random 256-bit secret, hex encoded, suitable for ENCRYPTION_SECRET.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := security.GenerateSecret()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), secret)
			return err
		},
	}
}
