package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	"github.com/microsoft/service-fabric-sub058/internal/metrics"
	pebblestore "github.com/microsoft/service-fabric-sub058/internal/storage/pebble"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
)

// Version is reported through ControlQueryVersion.
const Version = "logmux-local/1"

// Options configure the in-process container manager.
type Options struct {
	Fsync pebblestore.FsyncMode
	// BlockCache is the byte budget shared by the block caches of every open
	// container. Zero disables caching.
	BlockCache int64
	Metrics    *metrics.Metrics
	Logger     logpkg.Logger
}

// Manager opens containers as Pebble databases, one per path.
type Manager struct {
	opts  Options
	log   logpkg.Logger
	m     *metrics.Metrics
	cache *ristretto.Cache[string, *cachedBlock]

	mu     sync.Mutex
	open   map[string]*Container
	closed bool
}

var _ container.Manager = (*Manager)(nil)

// NewManager returns a manager with no open containers.
func NewManager(opts Options) (*Manager, error) {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Discard()
	}
	m := &Manager{
		opts: opts,
		log:  opts.Logger.WithComponent("container"),
		m:    opts.Metrics,
		open: make(map[string]*Container),
	}
	if opts.BlockCache > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, *cachedBlock]{
			NumCounters: 10 * (opts.BlockCache / 4096),
			MaxCost:     opts.BlockCache,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("block cache: %w", err)
		}
		m.cache = cache
	}
	return m, nil
}

// Name identifies the implementation.
func (m *Manager) Name() string { return "local" }

func (m *Manager) openDB(path string, mustExist bool) (*pebblestore.DB, error) {
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:   path,
		Fsync:     m.opts.Fsync,
		MustExist: mustExist,
		Metrics:   m.m.Storage(),
		PebbleOptions: &pebble.Options{
			Logger: pebbleLogger{l: m.log},
		},
	})
	if err != nil && mustExist && isNotExist(err, path) {
		return nil, fmt.Errorf("%w: %s", container.ErrNotFound, path)
	}
	return db, err
}

func isNotExist(err error, path string) bool {
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	_, statErr := os.Stat(filepath.Join(path, "CURRENT"))
	return errors.Is(statErr, os.ErrNotExist)
}

// CreateContainer creates a new container at opts.Path.
func (m *Manager) CreateContainer(ctx context.Context, opts container.CreateOptions) (container.Container, error) {
	if opts.Path == "" || opts.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: container needs a path and id", container.ErrInvalid)
	}
	if opts.MaxBlockSize <= 0 || opts.Capacity <= 0 || opts.MaxStreams <= 0 {
		return nil, fmt.Errorf("%w: capacity, max streams and max block size must be positive", container.ErrInvalid)
	}
	path := filepath.Clean(opts.Path)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, container.ErrClosed
	}
	if _, ok := m.open[path]; ok {
		return nil, fmt.Errorf("%w: %s", container.ErrExists, path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	db, err := m.openDB(path, false)
	if err != nil {
		return nil, err
	}
	if _, err := db.Get(containerMetaKey); err == nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s", container.ErrExists, path)
	}
	meta := containerMeta{ID: opts.ID, Capacity: opts.Capacity, MaxStreams: opts.MaxStreams, MaxBlockSize: opts.MaxBlockSize}
	b := db.NewBatch()
	defer b.Close()
	if err := b.Set(containerMetaKey, meta.encode(), nil); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.CommitBatch(ctx, b); err != nil {
		_ = db.Close()
		return nil, err
	}
	c := newContainer(m, path, db, meta)
	m.open[path] = c
	m.log.Info("container created", logpkg.Str("path", path), logpkg.Str("id", opts.ID.String()))
	return c.ref(), nil
}

// OpenContainer opens the container at path. A non-nil id must match the
// stored identifier. Opening a container that is already open shares it.
func (m *Manager) OpenContainer(ctx context.Context, path string, id uuid.UUID) (container.Container, error) {
	path = filepath.Clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, container.ErrClosed
	}
	if c, ok := m.open[path]; ok {
		if id != uuid.Nil && id != c.meta.ID {
			return nil, fmt.Errorf("%w: %s holds %s", container.ErrNotFound, path, c.meta.ID)
		}
		return c.ref(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := m.openDB(path, true)
	if err != nil {
		return nil, err
	}
	raw, err := db.Get(containerMetaKey)
	if err != nil {
		_ = db.Close()
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", container.ErrNotFound, path)
		}
		return nil, err
	}
	meta, err := decodeContainerMeta(raw)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if id != uuid.Nil && id != meta.ID {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s holds %s", container.ErrNotFound, path, meta.ID)
	}
	c := newContainer(m, path, db, meta)
	if err := c.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	m.open[path] = c
	m.log.Debug("container opened", logpkg.Str("path", path), logpkg.Int("streams", c.streamCount), logpkg.Int64("used", c.used))
	return c.ref(), nil
}

// DeleteContainer removes the container at path. Open handles of the
// container observe container.ErrGone afterwards.
func (m *Manager) DeleteContainer(ctx context.Context, path string, id uuid.UUID) error {
	path = filepath.Clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return container.ErrClosed
	}
	if c, ok := m.open[path]; ok {
		if id != uuid.Nil && id != c.meta.ID {
			return fmt.Errorf("%w: %s holds %s", container.ErrNotFound, path, c.meta.ID)
		}
		c.markGone()
		delete(m.open, path)
	} else {
		db, err := m.openDB(path, true)
		if err != nil {
			return err
		}
		raw, err := db.Get(containerMetaKey)
		_ = db.Close()
		if err != nil {
			return fmt.Errorf("%w: %s", container.ErrNotFound, path)
		}
		meta, err := decodeContainerMeta(raw)
		if err != nil {
			return err
		}
		if id != uuid.Nil && id != meta.ID {
			return fmt.Errorf("%w: %s holds %s", container.ErrNotFound, path, meta.ID)
		}
	}
	if err := os.RemoveAll(path); err != nil {
		return err
	}
	m.log.Info("container deleted", logpkg.Str("path", path))
	return nil
}

// Close closes every open container.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	open := m.open
	m.open = map[string]*Container{}
	m.mu.Unlock()

	var errs []error
	for _, c := range open {
		if err := c.shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.cache != nil {
		m.cache.Close()
	}
	return errors.Join(errs...)
}

// pebbleLogger routes Pebble's own messages into the container logger.
type pebbleLogger struct{ l logpkg.Logger }

func (p pebbleLogger) Infof(format string, args ...interface{})  { p.l.Debugf(format, args...) }
func (p pebbleLogger) Errorf(format string, args ...interface{}) { p.l.Errorf(format, args...) }
func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Errorf(format, args...)
	panic(fmt.Sprintf(format, args...))
}
