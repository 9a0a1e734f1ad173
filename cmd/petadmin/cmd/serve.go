package cmd

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
	"github.com/uptrace/bun/migrate"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/cmd/cmdutil"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/auth"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/migrations"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/server"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/telemetry"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin API server",
	Long:  `Starts the HTTP server with the admin API and, when an external IdP is configured, the SSO endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		shutdownTracing, err := telemetry.Init(ctx, cfg.Observability, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				logger.Warn("tracing shutdown", "error", err)
			}
		}()

		bundle, err := cmdutil.NewIAMServiceBundle(cfg, logger)
		if err != nil {
			return err
		}
		defer bundle.Close()
		logger.Info("connected to database", "rules", bundle.Service.Rules().Len())

		if migrateOnStart {
			migrator := migrate.NewMigrator(bundle.DB, migrations.Migrations)
			if err := migrator.Init(ctx); err != nil {
				return fmt.Errorf("failed to initialize migrator: %w", err)
			}
			group, err := migrator.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			if !group.IsZero() {
				logger.Info("applied migrations", "group", group.ID)
			}
		}

		enforcer, err := auth.InitEnforcer()
		if err != nil {
			return fmt.Errorf("failed to initialize casbin enforcer: %w", err)
		}

		var relyingParty *auth.RelyingParty
		if cfg.OIDC.ExternalIdP != nil {
			relyingParty, err = auth.NewRelyingParty(ctx, cfg.OIDC.ExternalIdP)
			if err != nil {
				return fmt.Errorf("failed to create relying party: %w", err)
			}
			logger.Info("sso enabled", "issuer", cfg.OIDC.ExternalIdP.Issuer)
		}

		ssoEnabled := relyingParty != nil
		healthHandler := func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok","sso_enabled":%t}`, ssoEnabled)
		}

		router, err := server.NewRouter(server.RouterOptions{
			IAMService:    bundle.Service,
			Enforcer:      enforcer,
			RelyingParty:  relyingParty,
			Cfg:           cfg,
			Logger:        logger,
			HealthHandler: healthHandler,
		})
		if err != nil {
			return fmt.Errorf("failed to build router: %w", err)
		}

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", cfg.ServerAddr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				_ = srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			logger.Info("server stopped")
			return nil
		}
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "Apply pending migrations before serving")
	rootCmd.AddCommand(serveCmd)
}
