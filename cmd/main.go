package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"storefront-service/internal/api"
	"storefront-service/internal/commerce"
	"storefront-service/internal/config"
	"storefront-service/internal/consumer"
	"storefront-service/internal/repository"
	"storefront-service/internal/service"
	"storefront-service/internal/session"
	"storefront-service/migrations"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "storefront-service").Logger()

func connectDB(cfg *config.Config) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("mysql", cfg.DSN())
		if err == nil {
			err = db.Ping()
			if err == nil {
				logger.Info().Msgf("Connected to DB %s", cfg.DBName)
				return db, nil
			}
		}
		logger.Warn().Err(err).Msgf("Retry %d: failed to connect to DB %s (%s:%s)", i+1, cfg.DBName, cfg.DBHost, cfg.DBPort)
		time.Sleep(3 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to DB %s at %s:%s after retries: %w", cfg.DBName, cfg.DBHost, cfg.DBPort, err)
}

var rootCmd = &cobra.Command{
	Use:   "storefront-service",
	Short: "Storefront backend for the pizza shop: topping selector, cart panel and cart sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the storefront HTTP API and the catalog event consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the cart_mutations table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		db, err := connectDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := migrations.AutoMigrateCartMutations(3, db); err != nil {
			return fmt.Errorf("failed to migrate cart_mutations table: %w", err)
		}
		logger.Info().Msg("Migrated cart_mutations")
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <operator>",
	Short: "Print a bearer token for the /internal routes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")
		token, err := api.IssueOperatorToken(cfg.JWTSecret, args[0], ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	categories, err := config.LoadAddons(cfg.AddonsFile)
	if err != nil {
		return err
	}

	db, err := connectDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.AutoMigrateCartMutations(3, db); err != nil {
		return fmt.Errorf("failed to migrate cart_mutations table: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer rdb.Close()

	kafkaWriter := config.NewKafkaWriter(cfg.KafkaBrokers, cfg.CartTopic)
	defer kafkaWriter.Close()
	catalogReader := config.NewKafkaReader(cfg.KafkaBrokers, cfg.CatalogTopic, cfg.ConsumerGroup)

	client := commerce.NewClient(cfg.CommerceURL, cfg.CommercePublishableKey, nil)
	mutationRepo := repository.NewMutationRepository(db)
	catalogService := service.NewCatalogService(client, rdb, cfg.CatalogCacheTTL)
	cartService := service.NewCartService(client, catalogService, mutationRepo, kafkaWriter, rdb)

	pages := session.NewRegistry[*service.ProductPage]()
	panels := session.NewRegistry[*service.CartPanel]()
	defer pages.CloseAll()
	defer panels.CloseAll()

	storefrontHandler := api.NewStorefrontHandler(catalogService, cartService, mutationRepo, pages, panels, api.Options{
		DefaultCountry:  cfg.DefaultCountry,
		Categories:      categories,
		ModalBreakpoint: cfg.ModalBreakpoint,
		SyncDebounce:    cfg.SyncDebounce,
		ToggleLockout:   cfg.ToggleLockout,
	})

	e := echo.New()
	e.HideBanner = true

	limiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(10),
				Burst:     30,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RateLimiterWithConfig(limiterConfig))

	storefrontHandler.RegisterRoutes(e)
	storefrontHandler.RegisterInternalRoutes(e.Group("/internal", api.OperatorAuth(cfg.JWTSecret)))

	e.GET("/storefront/health", func(c echo.Context) error {
		return c.JSON(200, map[string]interface{}{
			"status":  "ok",
			"service": "storefront-service",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return consumer.NewConsumer(catalogReader, catalogService).Run(gctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				expired := pages.Sweep(cfg.SessionIdleTimeout) + panels.Sweep(cfg.SessionIdleTimeout)
				if expired > 0 {
					logger.Info().Msgf("Expired %d idle sessions", expired)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	logger.Info().Msgf("Storefront listening on :%s", cfg.Port)
	return g.Wait()
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("storefront-service failed")
		os.Exit(1)
	}
}
