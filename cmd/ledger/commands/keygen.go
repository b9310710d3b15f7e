package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"token-ledger/internal/principal"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 keypair",
		Long: `Generate a keypair. The principal identifies the holder on the ledger; the
secret signs requests (pass it with --secret or LEDGER_SECRET).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := principal.GenerateKeypair()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "principal: %s\nsecret:    %s\n", kp.Principal(), kp.Secret())
			return nil
		},
	}
}
