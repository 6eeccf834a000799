package serverrun

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/microsoft/service-fabric-sub058/internal/config"
	"github.com/microsoft/service-fabric-sub058/internal/metrics"
	"github.com/microsoft/service-fabric-sub058/internal/runtime"
	grpcserver "github.com/microsoft/service-fabric-sub058/internal/server/grpc"
	httpserver "github.com/microsoft/service-fabric-sub058/internal/server/http"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
)

type Options struct {
	Config cfgpkg.Config
	// Socket overrides Config.SocketPath().
	Socket string
	// HTTPAddr serves health and metrics when set.
	HTTPAddr string
	// Logger overrides the logger built from Config.Logging.
	Logger logpkg.Logger
	// Registerer receives the driver's metrics; nil uses the default registry.
	Registerer prometheus.Registerer
}

// processLogger builds the driver's logger from cfg, falling back to text
// at the configured (or info) level.
func processLogger(cfg logpkg.Config) logpkg.Logger {
	l, err := logpkg.ApplyConfig(&cfg)
	if err == nil {
		return l
	}
	lvl := logpkg.InfoLevel
	if parsed, e := logpkg.ParseLevel(cfg.Level); e == nil {
		lvl = parsed
	}
	return logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
}

// Run starts the container driver on its unix socket, and the admin HTTP
// server when configured, and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Config.DataDir == "" {
		opts.Config.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.Socket == "" {
		opts.Socket = opts.Config.SocketPath()
	}
	procLogger := opts.Logger
	if procLogger == nil {
		procLogger = processLogger(opts.Config.Logging)
		// Pebble and grpc log through the standard library
		logpkg.RedirectStdLog(procLogger)
	}

	m := metrics.Default()
	var gatherer prometheus.Gatherer
	if opts.Registerer != nil {
		m = metrics.New(opts.Registerer)
		if g, ok := opts.Registerer.(prometheus.Gatherer); ok {
			gatherer = g
		}
	}
	rt, err := runtime.Open(runtime.Options{Config: opts.Config, Logger: procLogger, Metrics: m})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting logmux driver",
		logpkg.Str("socket", opts.Socket),
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", opts.Config.DataDir),
		logpkg.Str("fsync", opts.Config.Fsync),
		logpkg.Str("block_cache", opts.Config.Container.BlockCache.String()),
	)

	gsrv := grpcserver.New(rt)
	var hsrv *httpserver.Server
	if opts.HTTPAddr != "" {
		hsrv = httpserver.New(rt, procLogger, gatherer)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gsrv.ListenAndServe(sctx, "unix", opts.Socket); err != nil && sctx.Err() == nil {
			procLogger.Error("driver server stopped", logpkg.Err(err))
			errCh <- err
			stop()
		}
	}()
	if hsrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
				procLogger.Error("admin http server stopped", logpkg.Err(err))
				errCh <- err
				stop()
			}
		}()
	}
	<-sctx.Done()
	// Stop serving before the runtime closes its containers.
	gsrv.Close()
	if hsrv != nil {
		hsrv.Close()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if err := os.Remove(opts.Socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		procLogger.Warn("removing driver socket", logpkg.Err(err))
	}
	return errors.Join(errs...)
}
