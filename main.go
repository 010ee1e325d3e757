package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/linq/waitlist/src/config"
	"github.com/linq/waitlist/src/database"
	"github.com/linq/waitlist/src/handlers"
	"github.com/linq/waitlist/src/logging"
	"github.com/linq/waitlist/src/middleware"
	"github.com/linq/waitlist/src/repositories"
	"github.com/linq/waitlist/src/repositories/postgres"
	redisstore "github.com/linq/waitlist/src/repositories/redis"
	"github.com/linq/waitlist/src/repositories/sqlite"
	"github.com/linq/waitlist/src/services"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Set via -ldflags at build time
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "waitlist",
		Short:         "Waitlist server with a lockout-protected admin area",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				return os.Setenv("CONFIG_FILE", cfgFile)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (env vars override it)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	})
	cmd.AddCommand(newAdminCmd())

	return cmd
}

// loadConfig reads configuration and installs the global logger
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	return cfg, nil
}

// stores groups the backends selected by STORE_DRIVER
type stores struct {
	accounts    repositories.AccountStore
	subscribers repositories.SubscriberRepository
	health      handlers.Pinger
	close       func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &stores{
			accounts:    store,
			subscribers: store.SubscriberRepository(),
			health:      store,
			close:       func() { _ = store.Close() },
		}, nil

	case config.DriverRedis:
		client, err := redisstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		accounts := redisstore.NewAccountStore(client)
		return &stores{
			accounts:    accounts,
			subscribers: redisstore.NewSubscriberRepository(client),
			health:      accounts,
			close:       func() { _ = client.Close() },
		}, nil

	default:
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &stores{
			accounts:    postgres.NewAccountStore(db.GetPool()),
			subscribers: postgres.NewSubscriberRepository(db.GetPool()),
			health:      db,
			close:       db.Close,
		}, nil
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().
		Int("port", cfg.Port).
		Str("store", cfg.StoreDriver).
		Str("log_level", cfg.LogLevel).
		Msg("starting server")

	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.StoreDriver, err)
	}
	defer st.close()

	log.Info().Str("store", cfg.StoreDriver).Msg("store connected")

	tokens, err := middleware.NewTokenManager(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT secret: %w", err)
	}

	analyticsService, err := services.NewAnalyticsService(services.AnalyticsConfig{
		PostHogAPIKey: cfg.PostHogAPIKey,
		PostHogHost:   cfg.PostHogHost,
		Enabled:       cfg.PostHogEnabled,
		Environment:   cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize analytics service: %w", err)
	}
	defer analyticsService.Close()

	if analyticsService.Enabled() {
		log.Info().Str("host", cfg.PostHogHost).Msg("PostHog analytics enabled")
	} else {
		log.Info().Msg("PostHog analytics disabled")
	}

	notifiers := services.LockoutNotifiers{analyticsService}
	if cfg.AlertsEnabled() {
		notifiers = append(notifiers, services.NewAlertService(
			cfg.MailgunDomain,
			cfg.MailgunAPIKey,
			cfg.MailgunFromEmail,
			cfg.MailgunFromName,
			cfg.AlertEmail,
		))
		log.Info().Str("to", cfg.AlertEmail).Msg("lockout alert emails enabled")
	} else {
		log.Warn().Msg("Mailgun alert settings incomplete - lockout alert emails disabled")
	}

	var syncer services.SubscriberSyncer
	if cfg.MailerLiteAPIKey != "" {
		syncer = services.NewMailerLiteService(cfg.MailerLiteAPIKey, cfg.MailerLiteGroupID)
		log.Info().Msg("MailerLite service initialized")
	} else {
		log.Warn().Msg("MailerLite API key not configured - waitlist sync disabled")
	}

	guard := services.NewAccountGuard(st.accounts, services.NewBcryptHasher(cfg.BcryptCost),
		services.WithLockoutNotifier(notifiers))
	subscriberService := services.NewSubscriberService(st.subscribers, syncer, analyticsService)

	created, err := guard.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword, cfg.AdminResetPassword)
	if err != nil {
		return fmt.Errorf("failed to provision admin account: %w", err)
	}
	if created {
		log.Info().Str("username", cfg.AdminUsername).Msg("initial admin account created")
	}
	if cfg.AdminPassword == config.Defaults().AdminPassword {
		log.Warn().Msg("ADMIN_PASSWORD is the default; change it after first login")
	}

	routerCtx, stopRouter := context.WithCancel(ctx)
	defer stopRouter()
	router := newRouter(routerCtx, cfg, st, tokens, guard, subscriberService, analyticsService)

	// Timeouts guard against Slowloris
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server shut down successfully")
	return nil
}

// newRouter wires the HTTP routes. Background work owned by the router's
// middleware stops when ctx is cancelled.
func newRouter(ctx context.Context, cfg *config.Config, st *stores, tokens *middleware.TokenManager, guard *services.AccountGuard, subscriberService *services.SubscriberService, analyticsService *services.AnalyticsService) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	healthHandler := handlers.NewHealthHandler(st.health, cfg.StoreDriver)
	adminHandler := handlers.NewAdminHandler(guard, tokens, analyticsService, cfg.Environment == "production")
	subscriberHandler := handlers.NewSubscriberHandler(subscriberService)

	router.GET("/health", healthHandler.HandleHealth)
	router.GET("/ready", healthHandler.HandleReady)

	api := router.Group("/api")

	api.POST("/subscribe",
		middleware.NewIPRateLimitingMiddleware(ctx, middleware.RateLimitConfig{RequestsPerMinute: cfg.SubscribeRatePerMinute}),
		subscriberHandler.HandleSubscribe)
	api.POST("/admin/login",
		middleware.NewIPRateLimitingMiddleware(ctx, middleware.RateLimitConfig{RequestsPerMinute: cfg.LoginRatePerMinute}),
		adminHandler.HandleAdminLogin)

	admin := api.Group("")
	admin.Use(middleware.AdminAuthMiddleware(tokens))
	{
		admin.POST("/admin/logout", adminHandler.HandleAdminLogout)
		admin.GET("/admin/status", adminHandler.HandleAdminStatus)
		admin.POST("/admin/password", adminHandler.HandleChangePassword)
		admin.GET("/subscribers", subscriberHandler.HandleListSubscribers)
	}

	return router
}

// corsConfig allows the comma-separated origins, or localhost dev servers when unset
func corsConfig(allowed string) cors.Config {
	origins := map[string]bool{}
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}

	return cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if len(origins) == 0 {
				return strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1")
			}
			return origins[origin]
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}
