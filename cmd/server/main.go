/*
main.go - Application entry point

PURPOSE:
  Command line for the fanfund marketplace service.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve   Start the HTTP API (default)
  audit   Run the download-counter audit once and exit
  seed    Reset the store and load the demo catalog
  token   Sign a bearer token for local testing

STARTUP SEQUENCE (serve):
  1. Load config (defaults, file, .env, FANFUND_* env, flags)
  2. Build the zap logger
  3. Open the store (sqlite, postgres or memory), retrying with backoff
  4. Connect the optional Redis unlock cache
  5. Configure HTTP router and start the audit schedule
  6. Start server with graceful shutdown

GLOBAL FLAGS:
  --config   Config file (default: ./config.yaml or ./config/config.yaml)
  --env-dir  Directory holding .env / .env.local (default: .)
  --port     Overrides server.port
  --db       Overrides database.path (sqlite) or database.dsn (postgres)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (server.shutdown_timeout)
  3. Stop the audit schedule
  4. Close cache and database connections

EXAMPLES:
  fanfund serve --config=./config.yaml
  FANFUND_DATABASE_DRIVER=memory FANFUND_DEMO_ENABLED=true fanfund serve
  fanfund token --sub=fan1 --name="Music Lover"

SEE ALSO:
  - app.go: store and cache wiring
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/fanfund/api"
	"github.com/warp/fanfund/config"
	"github.com/warp/fanfund/logger"
	"github.com/warp/fanfund/market"
)

type rootOptions struct {
	configFile string
	envDir     string
	port       int
	db         string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "fanfund",
		Short:         "Direct-to-fan music marketplace: revenue and unlock ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path")
	root.PersistentFlags().StringVar(&opts.envDir, "env-dir", ".", "directory holding .env files")
	root.PersistentFlags().IntVar(&opts.port, "port", 0, "HTTP server port (overrides server.port)")
	root.PersistentFlags().StringVar(&opts.db, "db", "", "database path or DSN (overrides config)")

	serve := newServeCmd(opts)
	root.AddCommand(serve, newAuditCmd(opts), newSeedCmd(opts), newTokenCmd(opts))
	root.RunE = serve.RunE
	return root
}

// load reads config and applies explicit flag overrides.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	flags := cmd.Flags()
	cfg, err := config.Load(o.configFile, o.envDir, func(c *config.Config) {
		if flags.Changed("port") {
			c.Server.Port = o.port
		}
		if flags.Changed("db") {
			if c.Database.Driver == "postgres" {
				c.Database.DSN = o.db
			} else {
				c.Database.Path = o.db
			}
		}
	})
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// =============================================================================
// SERVE
// =============================================================================

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(parent context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required to serve")
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	cache, closeCache := openCache(ctx, cfg, log)
	defer closeCache()

	cur := market.Currency{Label: cfg.Currency.Label, Exponent: cfg.Currency.Exponent}
	handler := api.NewHandler(store, cache, cur, log)
	handler.Health = store
	if cfg.Demo.Enabled {
		handler.Seeder = api.NewSeeder(store, log)
		log.Warn("demo mode enabled: POST /api/demo/seed resets the database")
	}

	auditor := api.NewAuditor(store, log)
	auditor.Workers = cfg.Audit.Workers
	if err := auditor.Start(cfg.Audit.Schedule); err != nil {
		return fmt.Errorf("invalid audit.schedule: %w", err)
	}
	defer auditor.Stop()

	router := api.NewRouter(handler, api.NewAuthenticator(cfg.Auth.JWTSecret, log))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("database", cfg.Database.Driver),
			zap.Bool("unlock_cache", cache != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// =============================================================================
// AUDIT
// =============================================================================

func newAuditCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check download counters against the ledger once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			auditor := api.NewAuditor(store, log)
			auditor.Workers = cfg.Audit.Workers
			report, err := auditor.RunOnce(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "checked %d tracks, %d failed, %d mismatches\n",
				report.Checked, report.Failed, len(report.Mismatches))
			for _, m := range report.Mismatches {
				fmt.Fprintf(out, "  %s %q: downloads=%d entries=%d\n", m.TrackID, m.Title, m.Downloads, m.Entries)
			}
			if !report.OK() {
				return errors.New("audit found problems")
			}
			return nil
		},
	}
}

// =============================================================================
// SEED
// =============================================================================

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Reset the store and load the demo catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := api.NewSeeder(store, log).Seed(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d tracks and %d ledger entries\n", res.Tracks, res.Entries)
			return nil
		},
	}
}

// =============================================================================
// TOKEN
// =============================================================================

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		sub  string
		name string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token with auth.jwt_secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not set")
			}
			if role != api.RoleFan && role != api.RoleArtist {
				return fmt.Errorf("role must be %q or %q", api.RoleFan, api.RoleArtist)
			}
			auth := api.NewAuthenticator(cfg.Auth.JWTSecret, log)
			tok, err := auth.Issue(api.Identity{ID: market.AccountID(sub), Name: name, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "", "account id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", api.RoleFan, "fan or artist")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
