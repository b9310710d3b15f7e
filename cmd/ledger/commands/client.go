package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"token-ledger/internal/client"
	"token-ledger/internal/config"
	"token-ledger/internal/domain"
	"token-ledger/internal/principal"
)

const defaultEndpoint = "http://localhost:8080/rpc"

// clientFlags adds --endpoint and --secret, also read from LEDGER_ENDPOINT
// and LEDGER_SECRET.
func clientFlags(cmd *cobra.Command) {
	cmd.Flags().String("endpoint", defaultEndpoint, "Ledger RPC URL (env: LEDGER_ENDPOINT)")
	cmd.Flags().String("secret", "", "Base58 secret signing the request (env: LEDGER_SECRET)")
}

// newClient builds a client from flags. The keypair is nil when no secret is set.
func newClient(cmd *cobra.Command) (*client.HTTPClient, *principal.Keypair, error) {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, nil, err
	}

	var opts []client.ClientOption
	var kp *principal.Keypair
	if secret := v.GetString("secret"); secret != "" {
		var err error
		kp, err = principal.ParseSecret(secret)
		if err != nil {
			return nil, nil, fmt.Errorf("parse secret: %w", err)
		}
		opts = append(opts, client.WithKeypair(kp))
	}
	return client.NewHTTPClient(v.GetString("endpoint"), opts...), kp, nil
}

// principalArg resolves an explicit principal or falls back to the signer.
func principalArg(raw string, kp *principal.Keypair, what string) (domain.Principal, error) {
	if raw != "" {
		return principal.Parse(raw)
	}
	if kp == nil {
		return "", fmt.Errorf("%s is required without --secret", what)
	}
	return kp.Principal(), nil
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

func newClientCmds() []*cobra.Command {
	createToken := &cobra.Command{
		Use:   "create-token NAME SYMBOL SUPPLY",
		Short: "Create a token, crediting the whole supply to its owner",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, kp, err := newClient(cmd)
			if err != nil {
				return err
			}
			ownerFlag, _ := cmd.Flags().GetString("owner")
			owner, err := principalArg(ownerFlag, kp, "--owner")
			if err != nil {
				return err
			}
			supply, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			image, _ := cmd.Flags().GetString("image")

			if err := c.CreateToken(cmd.Context(), owner, args[0], args[1], image, supply); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) supply %d owner %s\n", args[1], args[0], supply, owner)
			return nil
		},
	}
	clientFlags(createToken)
	createToken.Flags().String("owner", "", "Owner principal (default: the signer)")
	createToken.Flags().String("image", "", "Image URL")

	transfer := &cobra.Command{
		Use:   "transfer SYMBOL TO AMOUNT",
		Short: "Transfer tokens from the signer",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, kp, err := newClient(cmd)
			if err != nil {
				return err
			}
			fromFlag, _ := cmd.Flags().GetString("from")
			from, err := principalArg(fromFlag, kp, "--from")
			if err != nil {
				return err
			}
			to, err := principal.Parse(args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}

			if err := c.Transfer(cmd.Context(), args[0], from, to, amount); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "transferred %d %s to %s\n", amount, args[0], to)
			return nil
		},
	}
	clientFlags(transfer)
	transfer.Flags().String("from", "", "Sender principal (default: the signer)")

	balance := &cobra.Command{
		Use:   "balance SYMBOL [PRINCIPAL]",
		Short: "Show a holder's balance",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, kp, err := newClient(cmd)
			if err != nil {
				return err
			}
			user, err := principalArg(optionalArg(args, 1), kp, "PRINCIPAL")
			if err != nil {
				return err
			}
			v, err := c.BalanceOf(cmd.Context(), args[0], user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	clientFlags(balance)

	supply := &cobra.Command{
		Use:   "supply SYMBOL",
		Short: "Show a token's total supply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			v, err := c.TotalSupply(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	clientFlags(supply)

	tokens := &cobra.Command{
		Use:   "tokens",
		Short: "List tokens in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			list, err := c.TokenList(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SYMBOL\tNAME\tIMAGE")
			for _, t := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Symbol, t.Name, t.ImageURL)
			}
			return tw.Flush()
		},
	}
	clientFlags(tokens)

	token := &cobra.Command{
		Use:   "token SYMBOL",
		Short: "Show token metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			info, err := c.Token(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if info == nil {
				return fmt.Errorf("token %s not found", args[0])
			}
			return printJSON(cmd, info)
		},
	}
	clientFlags(token)

	history := &cobra.Command{
		Use:   "history SYMBOL [PRINCIPAL]",
		Short: "Show a holder's transaction history",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, kp, err := newClient(cmd)
			if err != nil {
				return err
			}
			user, err := principalArg(optionalArg(args, 1), kp, "PRINCIPAL")
			if err != nil {
				return err
			}
			txs, err := c.Transactions(cmd.Context(), args[0], user)
			if err != nil {
				return err
			}
			if txs == nil {
				txs = []domain.Transaction{}
			}
			return printJSON(cmd, txs)
		},
	}
	clientFlags(history)

	return []*cobra.Command{createToken, transfer, balance, supply, tokens, token, history}
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
