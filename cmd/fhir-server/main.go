package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fhirlite/fhirlite/internal/config"
	"github.com/fhirlite/fhirlite/internal/domain/patient"
	"github.com/fhirlite/fhirlite/internal/platform/db"
	"github.com/fhirlite/fhirlite/internal/platform/middleware"
)

func main() {
	root := &cobra.Command{
		Use:           "fhir-server",
		Short:         "Versioned FHIR Patient server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "fhir-server").
		Logger()
	if cfg.IsDev() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
			cancel()
			if err != nil {
				return err
			}
			defer pool.Close()

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true

			e.Use(middleware.RequestID())
			e.Use(middleware.Logger(logger))
			e.Use(middleware.Recovery(logger))
			e.Use(middleware.RequestTimeout(30 * time.Second))
			e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
				AllowOrigins: cfg.CORSOrigins,
				AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			}))
			e.Use(middleware.Audit(logger))

			e.GET("/health", func(c echo.Context) error {
				return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
			})
			e.GET("/health/db", db.HealthHandler(pool))

			repo := patient.NewPgRepository(pool)
			svc := patient.NewService(repo, logger)
			handler := patient.NewHandler(svc, cfg.FHIRBaseURL, logger)
			handler.Register(e.Group("/fhir"))

			go func() {
				logger.Info().Str("port", cfg.Port).Msg("server starting")
				if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			<-quit

			logger.Info().Msg("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := e.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	migrate.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				logger := newLogger(cfg)

				ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
				defer cancel()

				pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
				if err != nil {
					return err
				}
				defer pool.Close()

				m := db.NewMigrator(pool, cfg.MigrationsDir, cfg.DBSchema)
				count, err := m.Up(ctx)
				if err != nil {
					return err
				}
				logger.Info().Int("applied", count).Str("schema", cfg.DBSchema).Msg("migrations complete")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
				if err != nil {
					return err
				}
				defer pool.Close()

				m := db.NewMigrator(pool, cfg.MigrationsDir, cfg.DBSchema)
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}

				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = fmt.Sprintf("applied %s", s.AppliedAt.Format(time.RFC3339))
					}
					fmt.Printf("%03d  %-40s %s\n", s.Version, s.Name, state)
				}
				return nil
			},
		},
	)

	return migrate
}
