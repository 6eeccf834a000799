package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	cfgpkg "github.com/microsoft/service-fabric-sub058/internal/config"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	"github.com/microsoft/service-fabric-sub058/internal/container/local"
	"github.com/microsoft/service-fabric-sub058/internal/logmgr"
	"github.com/microsoft/service-fabric-sub058/internal/metrics"
	pebblestore "github.com/microsoft/service-fabric-sub058/internal/storage/pebble"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config  cfgpkg.Config
	Logger  logpkg.Logger
	Metrics *metrics.Metrics
}

// Runtime owns the in-process container manager of a driver instance and a
// logical-log registry bound to it.
type Runtime struct {
	cfg        cfgpkg.Config
	log        logpkg.Logger
	m          *metrics.Metrics
	containers *local.Manager

	regOnce  sync.Once
	registry *logmgr.Registry

	mu     sync.Mutex
	closed bool
}

// Open validates the configuration and builds the container manager.
func Open(opts Options) (*Runtime, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Discard()
	}
	fsync, err := pebblestore.ParseFsyncMode(opts.Config.Fsync)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Config.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	mgr, err := local.NewManager(local.Options{
		Fsync:      fsync,
		BlockCache: int64(opts.Config.Container.BlockCache),
		Metrics:    opts.Metrics,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Runtime{cfg: opts.Config, log: opts.Logger, m: opts.Metrics, containers: mgr}, nil
}

// Containers returns the container manager served to driver clients.
func (r *Runtime) Containers() container.Manager { return r.containers }

// Registry returns a registry whose physical logs share the runtime's
// containers. Disconnecting it leaves the containers open.
func (r *Runtime) Registry() *logmgr.Registry {
	r.regOnce.Do(func() {
		r.registry = logmgr.New(logmgr.Options{
			Config:  r.cfg,
			Logger:  r.log,
			Metrics: r.m,
			Connect: func(context.Context) (container.Manager, error) {
				return sharedManager{r.containers}, nil
			},
		})
	})
	return r.registry
}

// Logger returns the process logger.
func (r *Runtime) Logger() logpkg.Logger { return r.log }

// Metrics returns the collectors the runtime reports to.
func (r *Runtime) Metrics() *metrics.Metrics { return r.m }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.cfg }

// CheckHealth reports whether the runtime is open and its data directory is
// reachable.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return errors.New("runtime closed")
	}
	fi, err := os.Stat(r.cfg.DataDir)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", r.cfg.DataDir)
	}
	return nil
}

// Close reports leaked registry objects and closes every open container.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	if r.registry != nil {
		if leaks := r.registry.LeakCheck(); len(leaks) > 0 {
			r.log.Warn("closing with open logs", logpkg.Int("count", len(leaks)), logpkg.Any("objects", leaks))
		}
	}
	return r.containers.Close()
}

// sharedManager hands the runtime's manager to a registry without giving
// it ownership.
type sharedManager struct {
	container.Manager
}

func (sharedManager) Close() error { return nil }
