package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-engine/internal/model"
	"github.com/sells-group/hazard-engine/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hazard intelligence HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := server.New(env.Engine, server.Config{
			Bounds: model.BBox{
				MinLat: cfg.Bounds.MinLat,
				MinLng: cfg.Bounds.MinLng,
				MaxLat: cfg.Bounds.MaxLat,
				MaxLng: cfg.Bounds.MaxLng,
			},
			RouteRatePerS:  cfg.Planner.RatePerSecond,
			RouteRateBurst: cfg.Planner.RateBurst,
		})

		// Expire stale hazards in the background.
		sweepInterval := cfg.Hazard.SweepInterval
		if sweepInterval <= 0 {
			sweepInterval = 5 * time.Minute
		}
		go func() {
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.C:
					if n := env.Engine.SweepHazards(now.UTC()); n > 0 {
						zap.L().Info("stale hazards expired", zap.Int("count", n))
					}
				}
			}
		}()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: srv.Handler(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = httpSrv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
