package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/petnica-meteor-group/meteornet-server/pkg/logger"
	"github.com/petnica-meteor-group/meteornet-server/pkg/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MeteorNet server",
	Long: `Start the MeteorNet server: the station and operator HTTP endpoints,
the periodic status scan and the measurement retention cycle.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.Server.JWTSecret == "" || cfg.Server.JWTSecret == "change_me_in_production" {
		return errors.New("JWT_SECRET environment variable is not set or has an invalid value")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.WithComponent("server")

	return withApp(ctx, func(app *App) error {
		routeManager := NewRouteManager(app.routeDeps(), logger.WithComponent("http"))
		routeManager.Setup()

		addr := ":" + cfg.Server.Port
		server := &http.Server{
			Handler:      routeManager.Router,
			Addr:         addr,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		sched := scheduler.New(logger.WithComponent("scheduler"), app.metrics,
			scheduler.NewScanCycle(app.status, cfg.Scheduler.ScanInterval, logger.WithComponent("scan"), app.metrics),
			scheduler.NewRetentionCycle(app.pruner, cfg.Scheduler.RetentionInterval),
		)

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			return sched.Run(gctx)
		})

		g.Go(func() error {
			log.Info().Str("addr", addr).Msg("Starting MeteorNet server")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to start server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			log.Info().Msg("Shutdown signal received")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			return nil
		})

		err := g.Wait()
		log.Info().Msg("Server stopped")
		return err
	})
}
