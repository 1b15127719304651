package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anggasct/exflow/pkg/api"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:                   "serve [--addr ADDR]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Serve the exception request HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("exflow-serve")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, AppConfig, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = AppConfig.Server.Addr
			}
			srv := &http.Server{
				Addr: addr,
				Handler: api.NewServer(a.engine, logger.Named("http"),
					api.WithMetrics(func() any { return a.metrics.Snapshot() })).Router(),
				ReadTimeout:  AppConfig.Server.ReadTimeout,
				WriteTimeout: AppConfig.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
