// Command cmdserver runs the JSON command server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"mini-cmd/admin"
	"mini-cmd/config"
	"mini-cmd/dispatch"
	"mini-cmd/logger"
	"mini-cmd/metrics"
	"mini-cmd/middleware"
	"mini-cmd/registry"
	"mini-cmd/server"
	"mini-cmd/tracing"
)

func main() {
	cfg, err := config.Load("cmdserver", os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "cmdserver: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cmdserver: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Errorw("server failed", "error", err)
		_ = log.Sync()
		os.Exit(1) //nolint: gocritic // logger synced above
	}
}

func run(ctx context.Context, cfg config.Config, log logger.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warnw("failed to flush traces", "error", err)
		}
	}()

	agg := metrics.NewAggregator()
	d := dispatch.New(agg, dispatch.WithLogger(log))

	opts := []server.Option{server.WithLogger(log)}
	if cfg.Registry.Enabled() {
		reg, err := registry.NewEtcdRegistry(cfg.Registry, log)
		if err != nil {
			return err
		}
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, cfg.Registry))
	}

	srv := server.NewServer(d, cfg.Server, opts...)
	srv.Use(middleware.Recovery(log))
	srv.Use(middleware.Logging(log))
	srv.Use(middleware.Tracing(nil))

	errCh := make(chan error, 2)
	go func() { errCh <- srv.ListenAndServe() }()

	var adminSrv *admin.Server
	if cfg.Admin.Addr != "" {
		adminSrv = admin.NewServer(cfg.Admin, agg, log)
		go func() { errCh <- adminSrv.ListenAndServe() }()
	}

	reporterCtx, stopReporter := context.WithCancel(ctx)
	defer stopReporter()
	go metrics.NewReporter(agg, log, cfg.Metrics.ReportInterval).Run(reporterCtx)

	var runErr error
	select {
	case <-ctx.Done():
		log.Infow("shutting down")
	case runErr = <-errCh:
	}

	if err := srv.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		log.Warnw("graceful shutdown incomplete", "error", err)
	}
	if adminSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		if err := adminSrv.Shutdown(sctx); err != nil {
			log.Warnw("failed to stop admin server", "error", err)
		}
		cancel()
	}

	metrics.LogSnapshot(log.Named("metrics"), agg.Snapshot())
	return runErr
}
