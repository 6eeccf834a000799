package logmgr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/microsoft/service-fabric-sub058/internal/asynclock"
	cfgpkg "github.com/microsoft/service-fabric-sub058/internal/config"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	"github.com/microsoft/service-fabric-sub058/internal/container/local"
	"github.com/microsoft/service-fabric-sub058/internal/container/remote"
	"github.com/microsoft/service-fabric-sub058/internal/metrics"
	pebblestore "github.com/microsoft/service-fabric-sub058/internal/storage/pebble"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
)

// Options configure a Registry.
type Options struct {
	Config  cfgpkg.Config
	Logger  logpkg.Logger
	Metrics *metrics.Metrics
	// Connect replaces the driver-then-local connection logic.
	Connect func(ctx context.Context) (container.Manager, error)
}

// Registry owns the container-manager connection and every physical log
// opened through it. The connection exists only while at least one manager
// handle or physical log does.
type Registry struct {
	cfg     cfgpkg.Config
	log     logpkg.Logger
	m       *metrics.Metrics
	connect func(ctx context.Context) (container.Manager, error)

	lock     *asynclock.Lock
	conn     container.Manager
	handles  map[uuid.UUID]*ManagerHandle
	phys     map[uuid.UUID]*physicalLog
	connects int
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry configured from defaults and
// LOGMUX_* environment variables.
func Default() *Registry {
	defaultOnce.Do(func() {
		cfg := cfgpkg.Default()
		cfgpkg.FromEnv(&cfg)
		defaultRegistry = New(Options{Config: cfg, Metrics: metrics.Default()})
	})
	return defaultRegistry
}

// New builds an isolated registry.
func New(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Discard()
	}
	r := &Registry{
		cfg:     opts.Config,
		log:     opts.Logger.WithComponent("registry"),
		m:       opts.Metrics,
		lock:    asynclock.New("registry"),
		handles: make(map[uuid.UUID]*ManagerHandle),
		phys:    make(map[uuid.UUID]*physicalLog),
	}
	r.connect = opts.Connect
	if r.connect == nil {
		r.connect = r.dial
	}
	return r
}

// dial prefers the container driver and falls back to the in-process
// container when no driver is reachable.
func (r *Registry) dial(ctx context.Context) (container.Manager, error) {
	if r.cfg.PreferDriver {
		m, err := remote.Dial(ctx, remote.Options{Socket: r.cfg.SocketPath(), Logger: r.log})
		if err == nil {
			r.log.Info("using container driver", logpkg.Str("socket", r.cfg.SocketPath()))
			return m, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		r.log.Debug("container driver not found, using in-process container", logpkg.Err(err))
	}
	fsync, err := pebblestore.ParseFsyncMode(r.cfg.Fsync)
	if err != nil {
		return nil, err
	}
	return local.NewManager(local.Options{
		Fsync:      fsync,
		BlockCache: int64(r.cfg.Container.BlockCache),
		Metrics:    r.m,
		Logger:     r.log,
	})
}

// ensureConn returns the connection, creating it if needed. Callers hold
// the registry lock.
func (r *Registry) ensureConn(ctx context.Context) (container.Manager, error) {
	if r.conn != nil {
		return r.conn, nil
	}
	conn, err := r.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect container manager: %w", err)
	}
	r.conn = conn
	r.connects++
	r.log.Debug("container manager connected", logpkg.Str("impl", conn.Name()))
	return conn, nil
}

// maybeDisconnect drops the connection when nothing uses it. Callers hold
// the registry lock.
func (r *Registry) maybeDisconnect() error {
	if r.conn == nil || len(r.handles) > 0 || len(r.phys) > 0 {
		return nil
	}
	conn := r.conn
	r.conn = nil
	r.log.Debug("container manager disconnected", logpkg.Str("impl", conn.Name()))
	return conn.Close()
}

// Open returns a new manager handle.
func (r *Registry) Open(ctx context.Context) (*ManagerHandle, error) {
	if err := r.lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer r.lock.Unlock()
	conn, err := r.ensureConn(ctx)
	if err != nil {
		return nil, err
	}
	h := &ManagerHandle{id: uuid.New(), reg: r, conn: conn}
	r.handles[h.id] = h
	return h, nil
}

// Connected reports whether a container-manager connection is open.
func (r *Registry) Connected() bool {
	if err := r.lock.Lock(context.Background()); err != nil {
		return false
	}
	defer r.lock.Unlock()
	return r.conn != nil
}

// LeakCheck lists every handle, physical log and logical log still open.
// It is empty once everything has been closed.
func (r *Registry) LeakCheck() []string {
	if err := r.lock.Lock(context.Background()); err != nil {
		return nil
	}
	defer r.lock.Unlock()
	var out []string
	for id := range r.handles {
		out = append(out, "manager handle "+id.String())
	}
	for _, p := range r.phys {
		out = append(out, p.leaks()...)
	}
	if r.conn != nil {
		out = append(out, "container manager "+r.conn.Name())
	}
	sort.Strings(out)
	return out
}

// ManagerHandle is a reference on the registry's connection.
type ManagerHandle struct {
	id     uuid.UUID
	reg    *Registry
	conn   container.Manager
	closed bool // guarded by reg.lock
}

// ID identifies the handle.
func (h *ManagerHandle) ID() uuid.UUID { return h.id }

// Implementation names the container implementation in use.
func (h *ManagerHandle) Implementation() string { return h.conn.Name() }

// ContainerOptions size a new physical log. Zero fields take configured
// defaults.
type ContainerOptions struct {
	Capacity     int64
	MaxStreams   int
	MaxBlockSize int
}

func (h *ManagerHandle) lock(ctx context.Context) error {
	if err := h.reg.lock.Lock(ctx); err != nil {
		return err
	}
	if h.closed {
		h.reg.lock.Unlock()
		return ErrClosed
	}
	return nil
}

// CreatePhysicalLog creates a container at path and returns a handle on it.
func (h *ManagerHandle) CreatePhysicalLog(ctx context.Context, path string, id uuid.UUID, opts ContainerOptions) (*PhysicalLogHandle, error) {
	r := h.reg
	if opts.Capacity == 0 {
		opts.Capacity = int64(r.cfg.Container.Capacity)
	}
	if opts.MaxStreams == 0 {
		opts.MaxStreams = r.cfg.Container.MaxStreams
	}
	if opts.MaxBlockSize == 0 {
		opts.MaxBlockSize = int(r.cfg.Container.MaxBlockSize)
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	if err := h.lock(ctx); err != nil {
		return nil, err
	}
	defer r.lock.Unlock()
	c, err := h.conn.CreateContainer(ctx, container.CreateOptions{
		Path:         path,
		ID:           id,
		Capacity:     opts.Capacity,
		MaxStreams:   opts.MaxStreams,
		MaxBlockSize: opts.MaxBlockSize,
	})
	if err != nil {
		return nil, err
	}
	p := newPhysicalLog(r, c, path, opts.MaxBlockSize)
	ph, err := r.adopt(ctx, p)
	if err != nil {
		return nil, err
	}
	r.log.Info("physical log created", logpkg.Str("path", path), logpkg.Str("id", p.id.String()))
	return ph, nil
}

// OpenPhysicalLog opens the container at path. A physical log that is
// already open is shared.
func (h *ManagerHandle) OpenPhysicalLog(ctx context.Context, path string, id uuid.UUID) (*PhysicalLogHandle, error) {
	r := h.reg
	if err := h.lock(ctx); err != nil {
		return nil, err
	}
	defer r.lock.Unlock()
	if p, ok := r.phys[id]; ok && id != uuid.Nil {
		return p.newHandle(ctx)
	}
	c, err := h.conn.OpenContainer(ctx, path, id)
	if err != nil {
		return nil, err
	}
	if p, ok := r.phys[c.ID()]; ok {
		_ = c.Close(ctx)
		return p.newHandle(ctx)
	}
	st, err := c.Stat(ctx)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	p := newPhysicalLog(r, c, path, st.MaxBlockSize)
	ph, err := r.adopt(ctx, p)
	if err != nil {
		return nil, err
	}
	r.log.Debug("physical log opened", logpkg.Str("path", path), logpkg.Str("id", p.id.String()))
	return ph, nil
}

// adopt registers a freshly opened physical log and hands out its first
// handle. If that fails the log is unregistered and its container closed.
// Callers hold the registry lock.
func (r *Registry) adopt(ctx context.Context, p *physicalLog) (*PhysicalLogHandle, error) {
	r.phys[p.id] = p
	ph, err := p.newHandle(ctx)
	if err == nil {
		return ph, nil
	}
	delete(r.phys, p.id)
	if cerr := p.c.Close(context.WithoutCancel(ctx)); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return nil, err
}

// DeletePhysicalLog deletes the container at path. Open handles on it see
// container.ErrGone afterwards.
func (h *ManagerHandle) DeletePhysicalLog(ctx context.Context, path string, id uuid.UUID) error {
	if err := h.lock(ctx); err != nil {
		return err
	}
	defer h.reg.lock.Unlock()
	if err := h.conn.DeleteContainer(ctx, path, id); err != nil {
		return err
	}
	h.reg.log.Info("physical log deleted", logpkg.Str("path", path))
	return nil
}

// Close releases the handle. The last reference on the registry closes the
// connection.
func (h *ManagerHandle) Close(ctx context.Context) error {
	r := h.reg
	if err := r.lock.Lock(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer r.lock.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.closed = true
	delete(r.handles, h.id)
	return r.maybeDisconnect()
}
