package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"token-ledger/internal/config"
	"token-ledger/internal/feed"
	"token-ledger/internal/journal"
	"token-ledger/internal/ledger"
	"token-ledger/internal/logging"
	"token-ledger/internal/observability"
	"token-ledger/internal/rpc"
	"token-ledger/internal/server"
	"token-ledger/internal/storage"
	chstore "token-ledger/internal/storage/clickhouse"
	"token-ledger/internal/storage/memory"
	"token-ledger/internal/storage/migrations"
	pgstore "token-ledger/internal/storage/postgres"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger server",
		Long: `Run the ledger with its JSON-RPC endpoint (/rpc), live feed (/ws), journal
reads (/audit/entries), /health, /status and a separate /metrics listener.`,
		RunE: runServe,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	return config.Load(configFile, cmd.Flags())
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics := observability.DefaultMetrics
	metrics.RecordStart(time.Now())

	j, err := openJournal(ctx, cfg.Journal, logger)
	if err != nil {
		return err
	}
	defer j.close()

	exporter, err := journal.NewExporter(journal.Config{
		BufferSize:    cfg.Journal.BufferSize,
		BatchSize:     cfg.Journal.BatchSize,
		FlushInterval: cfg.Journal.FlushInterval,
		MaxPending:    cfg.Journal.MaxPending,
	}, j.targets,
		journal.WithMetrics(metrics),
		journal.WithLogger(logger.Named("journal")))
	if err != nil {
		return err
	}

	hub := feed.NewHub(feed.Config{
		ClientBuffer: cfg.Feed.ClientBuffer,
		PingInterval: cfg.Feed.PingInterval,
		WriteTimeout: cfg.Feed.WriteTimeout,
	},
		feed.WithMetrics(metrics),
		feed.WithLogger(logger.Named("feed")),
		feed.WithCheckOrigin(originChecker(cfg.Server.CORSOrigins)))

	l := ledger.New(
		ledger.WithLogger(logger.Named("ledger")),
		ledger.WithSink(exporter),
		ledger.WithSink(hub),
		ledger.WithSink(observability.NewLedgerSink(metrics)),
	)

	rpcCfg := rpc.DefaultConfig()
	rpcCfg.RequireSignatures = cfg.Auth.RequireSignatures
	rpcCfg.MaxSkew = cfg.Auth.MaxSkew
	rpcCfg.RateLimit = cfg.Server.RateLimit
	rpcCfg.RateBurst = cfg.Server.RateBurst
	rpcSrv := rpc.NewServer(l, rpcCfg,
		rpc.WithMetrics(metrics),
		rpc.WithLogger(logger.Named("rpc")))

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		MetricsAddr:     cfg.Server.MetricsAddr,
		CORSOrigins:     cfg.Server.CORSOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, server.Deps{
		Ledger:   l,
		RPC:      rpcSrv,
		Hub:      hub,
		Exporter: exporter,
		Audit:    j.audit,
	}, server.WithLogger(logger.Named("server")))

	// The exporter outlives the HTTP servers so calls accepted during
	// shutdown still reach the journal.
	exportCtx, stopExport := context.WithCancel(context.Background())
	exportDone := make(chan struct{})
	go func() {
		defer close(exportDone)
		exporter.Run(exportCtx)
	}()

	logger.Info("ledger is running",
		zap.String("addr", cfg.Server.Addr),
		zap.Strings("journal", j.names()),
		zap.Bool("require_signatures", cfg.Auth.RequireSignatures))

	runErr := srv.Run(ctx)
	logger.Info("shutdown signal received, flushing journal")

	stopExport()
	select {
	case <-exportDone:
		logger.Info("journal flushed")
	case <-time.After(cfg.Server.ShutdownTimeout):
		logger.Warn("timeout waiting for journal flush")
	}
	return runErr
}

// originChecker mirrors the CORS policy for websocket upgrades.
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}

// openedJournal holds the journal targets and what closes them.
type openedJournal struct {
	targets []journal.Target
	audit   storage.EntryStore
	closers []func()
}

func (j *openedJournal) names() []string {
	names := make([]string, len(j.targets))
	for i, t := range j.targets {
		names[i] = t.Name
	}
	return names
}

func (j *openedJournal) close() {
	for i := len(j.closers) - 1; i >= 0; i-- {
		j.closers[i]()
	}
}

// openJournal connects configured stores, applying migrations. With no DSN
// configured the journal is kept in memory. Reads are served by Postgres
// when present, else ClickHouse.
func openJournal(ctx context.Context, cfg config.JournalConfig, logger *zap.Logger) (*openedJournal, error) {
	j := &openedJournal{}

	if cfg.PostgresDSN != "" {
		pool, applied, err := openPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		logMigrations(logger, "postgres", applied)
		j.closers = append(j.closers, pool.Close)
		entries := pgstore.NewEntryStore(pool)
		j.targets = append(j.targets, journal.Target{
			Name:    "postgres",
			Tokens:  pgstore.NewTokenStore(pool),
			Entries: entries,
		})
		j.audit = entries
		logger.Info("postgres journal ready")
	}

	if cfg.ClickhouseDSN != "" {
		conn, applied, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			j.close()
			return nil, fmt.Errorf("clickhouse journal: %w", err)
		}
		logMigrations(logger, "clickhouse", applied)
		j.closers = append(j.closers, func() {
			if err := conn.Close(); err != nil {
				logger.Warn("close clickhouse", zap.Error(err))
			}
		})
		entries := chstore.NewEntryStore(conn)
		j.targets = append(j.targets, journal.Target{Name: "clickhouse", Entries: entries})
		if j.audit == nil {
			j.audit = entries
		}
		logger.Info("clickhouse journal ready")
	}

	if len(j.targets) == 0 {
		entries := memory.NewEntryStore()
		j.targets = append(j.targets, journal.Target{
			Name:    "memory",
			Tokens:  memory.NewTokenStore(),
			Entries: entries,
		})
		j.audit = entries
	}
	return j, nil
}

func openPostgres(ctx context.Context, dsn string) (*pgstore.Pool, []string, error) {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres journal: %w", err)
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	return pool, applied, nil
}

func logMigrations(logger *zap.Logger, store string, applied []string) {
	if len(applied) > 0 {
		logger.Info("journal migrations applied", zap.String("store", store), zap.Strings("files", applied))
	}
}

var errNoDSN = errors.New("no journal DSN configured (set journal.postgres_dsn or journal.clickhouse_dsn)")
