package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	connections "github.com/goliatone/go-connections"
	"github.com/goliatone/go-connections/httpapi"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

type serveFlags struct {
	migrate      bool
	noWorker     bool
	cookieSecure bool
}

func newServeCmd() *cobra.Command {
	var sf serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the notification worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), sf)
		},
	}
	cmd.Flags().BoolVar(&sf.migrate, "migrate", false, "apply SQL migrations before serving")
	cmd.Flags().BoolVar(&sf.noWorker, "no-worker", false, "do not drain the notification queue in this process")
	cmd.Flags().BoolVar(&sf.cookieSecure, "cookie-secure", false, "mark the session cookie Secure")
	return cmd
}

func runServe(parent context.Context, sf serveFlags) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	opts := []connections.RuntimeOption{connections.WithRuntimeLoggerProvider(logs)}
	if sf.migrate && !cfg.Store.IsMongoDriver() {
		client, err := openMigratedClient(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, connections.WithStoreClient(client))
	}

	rt, err := connections.Bootstrap(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			appLogger.Warn("runtime close failed", "error", err)
		}
	}()

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: rt.HTTPHandler(httpapi.Options{
			CookieSecure: sf.cookieSecure,
			Logger:       logs.GetLogger("connections.http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		appLogger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if !sf.noWorker {
		group.Go(func() error {
			return rt.RunNotificationWorker(groupCtx)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		appLogger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
