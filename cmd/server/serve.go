package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/puntoylana/offlinecache/pkg/offlinecache"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	listen   string
	upstream string
	version  string
	logLevel string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the offline cache proxy",
		Example: `  offlinecache serve --upstream http://storefront:8080
  offlinecache serve -c offlinecache.yaml --version v2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "", "address to listen on (overrides config)")
	cmd.Flags().StringVar(&opts.upstream, "upstream", "", "storefront origin to forward to (overrides config)")
	cmd.Flags().StringVar(&opts.version, "version", "", "cache version to install (overrides config)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	config, err := offlinecache.LoadConfig(configFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		config.Listen = opts.listen
	}
	if cmd.Flags().Changed("upstream") {
		config.Upstream = opts.upstream
	}
	if cmd.Flags().Changed("version") {
		config.Version = opts.version
	}
	if cmd.Flags().Changed("log-level") {
		config.LogLevel = opts.logLevel
	}

	logger := offlinecache.NewLogger(os.Stderr, config)
	slog.SetDefault(logger)

	svc, err := offlinecache.New(
		offlinecache.WithConfig(config),
		offlinecache.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer svc.Close()

	// An unreachable storefront at boot must not keep the proxy down
	svc.StartInBackground(ctx)

	server := &http.Server{
		Addr:              config.Listen,
		Handler:           svc.Handler(nil),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", config.Listen,
			"origin", config.Origin,
			"upstream", config.Upstream,
			"version", config.Version,
			"store", config.Store.Backend)
		errCh <- server.ListenAndServe()
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
