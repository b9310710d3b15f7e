package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"token-ledger/internal/storage/migrations"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply journal schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Journal.PostgresDSN == "" && cfg.Journal.ClickhouseDSN == "" {
				return errNoDSN
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if cfg.Journal.PostgresDSN != "" {
				pool, applied, err := openPostgres(ctx, cfg.Journal.PostgresDSN)
				if err != nil {
					return err
				}
				pool.Close()
				printMigrations(out, "postgres", applied)
			}
			if cfg.Journal.ClickhouseDSN != "" {
				conn, applied, err := migrations.RunClickhouseMigrations(ctx, cfg.Journal.ClickhouseDSN)
				if err != nil {
					return fmt.Errorf("clickhouse migrations: %w", err)
				}
				conn.Close()
				printMigrations(out, "clickhouse", applied)
			}
			return nil
		},
	}
	cmd.Flags().String("journal.postgres_dsn", "", "Postgres journal DSN (env: LEDGER_JOURNAL_POSTGRES_DSN)")
	cmd.Flags().String("journal.clickhouse_dsn", "", "ClickHouse journal DSN (env: LEDGER_JOURNAL_CLICKHOUSE_DSN)")
	return cmd
}

func printMigrations(w io.Writer, store string, applied []string) {
	if len(applied) == 0 {
		fmt.Fprintf(w, "%s: schema up to date\n", store)
		return
	}
	for _, name := range applied {
		fmt.Fprintf(w, "%s: applied %s\n", store, name)
	}
}
