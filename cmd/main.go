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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"rewards_service/internal/api"
	"rewards_service/internal/bonus"
	"rewards_service/internal/config"
	"rewards_service/internal/ledger"
	"rewards_service/internal/ledger/memory"
	"rewards_service/internal/ledger/postgres"
	"rewards_service/internal/logging"
	"rewards_service/internal/notify"
	"rewards_service/internal/prize"
	"rewards_service/internal/spin"
	"rewards_service/internal/wager"
	"rewards_service/internal/wallet"
)

const shutdownTimeout = 15 * time.Second

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "rewards",
		Short:         "Spin-to-win rewards service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(serveCmd(), migrateCmd(), checkTablesCmd(), tokenCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logging.New(cfg.Logging)
	return cfg, nil
}

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	store, closeStore, err := openStore(ctx, cfg, migrate)
	if err != nil {
		return err
	}
	defer closeStore()

	wagers, closeWagers, err := openWagerProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeWagers()

	primary, err := cfg.PrimaryTable()
	if err != nil {
		return err
	}
	bonusTable, err := cfg.BonusTable()
	if err != nil {
		return err
	}

	hub := notify.NewHub()
	spins, err := spin.NewLedger(spin.Config{
		Store:      store,
		Table:      primary,
		TicketUnit: cfg.Tickets.Unit,
		Notifier:   hub,
	})
	if err != nil {
		return err
	}
	bonuses, err := bonus.NewService(bonus.Config{
		Store:    store,
		Table:    bonusTable,
		Cooldown: cfg.Bonus.Cooldown,
		Notifier: hub,
	})
	if err != nil {
		return err
	}

	gin.SetMode(cfg.Server.Mode)
	handler := api.NewHandler(spins, bonuses, wallet.NewService(store), wagers, hub)
	auth := api.NewAuthenticator(cfg.Auth.HMACSecret, cfg.Auth.Issuer, cfg.Auth.Leeway)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, auth),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.Store.Driver).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, migrate bool) (ledger.Store, func(), error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Warn().Msg("using in-memory store, state is lost on restart")
		return memory.New(), func() {}, nil
	}

	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.Silent)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			closeDB()
			return nil, nil, err
		}
	}
	return postgres.NewStore(db), closeDB, nil
}

func openWagerProvider(ctx context.Context, cfg *config.Config) (wager.Provider, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Warn().Msg("redis.addr not set, every account reads as zero wagered")
		return wager.NewStaticProvider(nil), func() {}, nil
	}
	rp, err := wager.NewRedisProvider(ctx, wager.RedisConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return nil, nil, err
	}
	cached := wager.NewCachedProvider(rp, cfg.Wager.CacheSize, cfg.Wager.CacheTTL)
	return cached, func() { _ = rp.Close() }, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != config.StoreDriverPostgres {
				return fmt.Errorf("migrate needs the postgres store, got %q", cfg.Store.Driver)
			}
			db, err := postgres.Open(cfg.Database.DSN, cfg.Database.Silent)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}

func checkTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-tables",
		Short: "Validate the configured prize tables and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for _, build := range []func() (prize.Table, error){cfg.PrimaryTable, cfg.BonusTable} {
				t, err := build()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s table (max prize %s)\n", t.Name(), t.MaxValue())
				for _, o := range t.Options() {
					fmt.Fprintf(out, "  %-12s %10s  p=%.4f\n", o.Label, o.Value, o.Probability)
				}
			}
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <account_id>",
		Short: "Issue a signed bearer token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			auth := api.NewAuthenticator(cfg.Auth.HMACSecret, cfg.Auth.Issuer, cfg.Auth.Leeway)
			token, err := auth.Issue(args[0], role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", api.RolePlayer, "player, withdrawals or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
