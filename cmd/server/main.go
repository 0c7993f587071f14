/*
main.go - Application entry point

PURPOSE:
  Starts the lieu-time (TOIL) engine HTTP server. Loads configuration,
  wires logger, store, service and router, and shuts down gracefully.

STARTUP SEQUENCE:
  1. Load .env into the environment (if present)
  2. Parse flags and load configuration (flags > env > config.yaml > defaults)
  3. Build the zap logger
  4. Open the SQLite store (migrates the schema)
  5. Create the service with the configured balance limits
  6. Configure the HTTP router and serve

COMMAND-LINE FLAGS:
  --port    HTTP server port (default: 8080)
  --db      SQLite database path (default: toil.db)
            Use ":memory:" for an in-memory database
  --config  Path to a YAML config file

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  ./toil-server --db=./data/toil.db
  ENV=production LOG_LEVEL=warn ./toil-server --port=3000
  TOIL_MAX_BALANCE_HOURS=37.5 ./toil-server --db=":memory:"

SEE ALSO:
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
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

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/warp/toil-engine/api"
	"github.com/warp/toil-engine/config"
	"github.com/warp/toil-engine/store/sqlite"
	"github.com/warp/toil-engine/toil"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "toil-server",
		Short: "Lieu-time (TOIL) balance engine",
		Long: `toil-server records overtime earned and lieu time taken per day,
keeps the running balance within configured limits, and moves weekly
timesheets through submit / approve / reject.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.Int("port", 8080, "HTTP server port")
	flags.String("db", "toil.db", "SQLite database path")
	flags.StringVar(&configFile, "config", "", "path to a YAML config file")
	_ = v.BindPFlag("PORT", flags.Lookup("port"))
	_ = v.BindPFlag("DB_PATH", flags.Lookup("db"))

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := config.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	svc := toil.NewService(store,
		toil.WithLimits(cfg.Limits()),
		toil.WithLogger(logger),
	)
	handler := api.NewHandler(svc, store, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Origins(),
		RateLimit:      rate.Limit(cfg.RateLimitRPS),
		RateBurst:      cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	limits := cfg.Limits()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("db", cfg.DBPath),
			zap.String("env", cfg.Env),
			zap.String("max_balance", limits.MaxBalance.String()),
			zap.String("min_balance", limits.MinBalance.String()),
			zap.String("max_consecutive_reduction", limits.MaxConsecutiveReduction.String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
