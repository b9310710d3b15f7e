// Package commands holds the ledger CLI.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ledger",
		Short: "Multi-asset token ledger",
		Long: `ledger runs a multi-asset token ledger behind a JSON-RPC endpoint with a live
websocket feed and an optional Postgres/ClickHouse journal, and talks to a running
ledger from the command line.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Config file (default ./config.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newKeygenCmd())
	for _, cmd := range newClientCmds() {
		root.AddCommand(cmd)
	}
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}
