package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adpilot/engine/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		h := &httpapi.Handler{
			Pipeline:   a.pipeline,
			Approvals:  a.approvals,
			Engine:     a.engine,
			Auth:       a.auth,
			Businesses: a.store,
			Log:        logger.Named("http"),
			Ping:       a.db.PingContext,
		}
		router := httpapi.NewRouter(h, httpapi.RouterOptions{
			Gatherer:       a.registry,
			Metrics:        a.metrics,
			RequestTimeout: cfg.RequestTimeoutDuration(),
		})
		srv := httpapi.NewServer(router, cfg.ListenAddr)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("listening", zap.String("addr", cfg.ListenAddr))
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}
