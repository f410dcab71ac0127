package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"docrag/internal/auth"
	"docrag/internal/handlers"
	"docrag/services/ingest"
)

func serveCMD() *cobra.Command {
	var addr string
	var noSweep bool

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the ingestion workers and the periodic sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			verifier, err := auth.NewVerifier(cfg.JWTSecret)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logrus.Info("starting server...")
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			dispatcher := ingest.NewDispatcher(a.pipeline, cfg.IngestWorkers, cfg.IngestQueueSize)
			dispatcher.Start(ctx)
			defer dispatcher.Stop()

			if !noSweep && cfg.SweepInterval > 0 {
				go a.sweeper(dispatcher, false).Loop(ctx, cfg.SweepInterval)
			}

			svc := a.documents(dispatcher)
			router := &handlers.Router{
				Verifier:  verifier,
				Documents: &handlers.DocumentHandler{DocumentService: svc, MaxFileSize: cfg.MaxFileSize},
				Projects:  &handlers.ProjectHandler{Directory: a.directory},
				Metrics:   a.metrics,
				Health:    a.health,
			}
			server := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           router.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logrus.WithField("address", cfg.HTTPAddr).Info("server starting")
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				logrus.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logrus.WithError(err).Warn("graceful shutdown failed")
				}
			}
			return nil
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	serve.Flags().BoolVar(&noSweep, "no-sweep", false, "disable the periodic orphan sweep")
	return serve
}
