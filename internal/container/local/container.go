package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	pebblestore "github.com/microsoft/service-fabric-sub058/internal/storage/pebble"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
)

const (
	stateOpen int32 = iota
	stateClosed
	stateGone
)

// Container is one Pebble-backed container shared by every handle opened on
// its path.
type Container struct {
	mgr  *Manager
	path string
	db   *pebblestore.DB
	meta containerMeta
	log  logpkg.Logger

	state atomic.Int32
	refs  int // guarded by mgr.mu

	mu          sync.Mutex
	streams     map[uuid.UUID]*streamState
	streamCount int
	used        int64
	notifyCh    chan struct{}
}

func newContainer(m *Manager, path string, db *pebblestore.DB, meta containerMeta) *Container {
	m.m.ContainersOpen.Inc()
	return &Container{
		mgr:      m,
		path:     path,
		db:       db,
		meta:     meta,
		log:      m.log.With(logpkg.Str("container", meta.ID.String())),
		streams:  make(map[uuid.UUID]*streamState),
		notifyCh: make(chan struct{}),
	}
}

// load recomputes stream count and usage from storage.
func (c *Container) load() error {
	return c.db.Scan(streamPrefix, prefixUpper(streamPrefix), func(k, v []byte) (bool, error) {
		if _, ok := parseStreamMetaKey(k); ok {
			c.streamCount++
			return true, nil
		}
		if _, _, ok := parseBlockKey(k); ok {
			c.used += int64(len(v) - envelopeHeader)
		}
		return true, nil
	})
}

// ref hands out a new handle; callers hold mgr.mu.
func (c *Container) ref() *containerRef {
	c.refs++
	return &containerRef{Container: c}
}

func (c *Container) check() error {
	switch c.state.Load() {
	case stateOpen:
		return nil
	case stateGone:
		return container.ErrGone
	default:
		return container.ErrClosed
	}
}

// markGone closes storage after the container was deleted underneath its
// handles. Callers hold mgr.mu.
func (c *Container) markGone() {
	if !c.state.CompareAndSwap(stateOpen, stateGone) {
		return
	}
	c.closeStorage()
}

// shutdown closes storage after the last handle went away.
func (c *Container) shutdown() error {
	if !c.state.CompareAndSwap(stateOpen, stateClosed) {
		return nil
	}
	return c.closeStorage()
}

func (c *Container) closeStorage() error {
	c.mu.Lock()
	for _, st := range c.streams {
		st.gone.Store(true)
	}
	c.streams = map[uuid.UUID]*streamState{}
	close(c.notifyCh)
	c.notifyCh = make(chan struct{})
	c.mu.Unlock()
	c.mgr.m.ContainersOpen.Dec()
	return c.db.Close()
}

// ID returns the container identifier.
func (c *Container) ID() uuid.UUID { return c.meta.ID }

// IsFunctional reports whether the container still accepts operations.
func (c *Container) IsFunctional() bool { return c.state.Load() == stateOpen }

// Stat reports capacity and usage.
func (c *Container) Stat(ctx context.Context) (container.Stats, error) {
	if err := c.check(); err != nil {
		return container.Stats{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return container.Stats{
		ID:           c.meta.ID,
		Path:         c.path,
		Capacity:     c.meta.Capacity,
		Used:         c.used,
		Streams:      c.streamCount,
		MaxStreams:   c.meta.MaxStreams,
		MaxBlockSize: c.meta.MaxBlockSize,
	}, nil
}

// CreateStream creates stream id and, when alias is non-empty, binds alias
// to it in the same batch.
func (c *Container) CreateStream(ctx context.Context, id uuid.UUID, alias string) (container.Stream, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: nil stream id", container.ErrInvalid)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.Get(keyStreamMeta(id)); err == nil {
		return nil, fmt.Errorf("%w: stream %s", container.ErrExists, id)
	}
	if c.streamCount >= c.meta.MaxStreams {
		return nil, fmt.Errorf("%w: %d streams", container.ErrCapacity, c.streamCount)
	}
	b := c.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyStreamMeta(id), encodeHead(-1), nil); err != nil {
		return nil, err
	}
	if alias != "" {
		if err := b.Set(keyAlias(alias), id[:], nil); err != nil {
			return nil, err
		}
	}
	if err := c.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	c.streamCount++
	st := &streamState{c: c, id: id, head: -1}
	c.streams[id] = st
	c.log.Debug("stream created", logpkg.Str("stream", id.String()), logpkg.Str("alias", alias))
	return st.ref(), nil
}

// OpenStream opens an existing stream. Concurrent opens share state.
func (c *Container) OpenStream(ctx context.Context, id uuid.UUID) (container.Stream, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.streams[id]; ok {
		return st.ref(), nil
	}
	raw, err := c.db.Get(keyStreamMeta(id))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, fmt.Errorf("%w: stream %s", container.ErrNotFound, id)
		}
		return nil, err
	}
	st := &streamState{c: c, id: id, head: decodeHead(raw)}
	if err := st.loadIndex(); err != nil {
		return nil, err
	}
	c.streams[id] = st
	return st.ref(), nil
}

// DeleteStream removes a stream, its records and every alias bound to it.
func (c *Container) DeleteStream(ctx context.Context, id uuid.UUID) error {
	if err := c.check(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.Get(keyStreamMeta(id)); err != nil {
		return fmt.Errorf("%w: stream %s", container.ErrNotFound, id)
	}

	var freed int64
	if err := c.db.Scan(keyBlock(id, 0), keyBlockUpper(id), func(_, v []byte) (bool, error) {
		freed += int64(len(v) - envelopeHeader)
		return true, nil
	}); err != nil {
		return err
	}
	var aliases [][]byte
	if err := c.db.Scan(aliasPrefix, prefixUpper(aliasPrefix), func(k, v []byte) (bool, error) {
		if len(v) == 16 && uuid.UUID(v) == id {
			aliases = append(aliases, append([]byte(nil), k...))
		}
		return true, nil
	}); err != nil {
		return err
	}

	b := c.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(keyStreamBase(id), keyStreamUpper(id), nil); err != nil {
		return err
	}
	for _, k := range aliases {
		if err := b.Delete(k, nil); err != nil {
			return err
		}
	}
	if err := c.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	if st, ok := c.streams[id]; ok {
		st.gone.Store(true)
		delete(c.streams, id)
	}
	c.streamCount--
	c.used -= freed
	c.notifyLocked()
	c.log.Debug("stream deleted", logpkg.Str("stream", id.String()), logpkg.Int("aliases", len(aliases)))
	return nil
}

// AssignAlias binds alias to id, replacing any previous binding.
func (c *Container) AssignAlias(ctx context.Context, alias string, id uuid.UUID) error {
	if err := c.check(); err != nil {
		return err
	}
	if alias == "" {
		return fmt.Errorf("%w: empty alias", container.ErrInvalid)
	}
	b := c.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyAlias(alias), id[:], nil); err != nil {
		return err
	}
	return c.db.CommitBatch(ctx, b)
}

// ResolveAlias returns the stream id bound to alias.
func (c *Container) ResolveAlias(ctx context.Context, alias string) (uuid.UUID, error) {
	if err := c.check(); err != nil {
		return uuid.Nil, err
	}
	raw, err := c.db.Get(keyAlias(alias))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("%w: alias %q", container.ErrNotFound, alias)
		}
		return uuid.Nil, err
	}
	return uuid.FromBytes(raw)
}

// RemoveAlias deletes the binding of alias.
func (c *Container) RemoveAlias(ctx context.Context, alias string) error {
	if err := c.check(); err != nil {
		return err
	}
	if _, err := c.db.Get(keyAlias(alias)); err != nil {
		return fmt.Errorf("%w: alias %q", container.ErrNotFound, alias)
	}
	b := c.db.NewBatch()
	defer b.Close()
	if err := b.Delete(keyAlias(alias), nil); err != nil {
		return err
	}
	return c.db.CommitBatch(ctx, b)
}

// adjustUsage applies a usage delta and wakes notification waiters.
func (c *Container) adjustUsage(delta int64) {
	c.mu.Lock()
	c.used += delta
	c.notifyLocked()
	c.mu.Unlock()
}

// reserve checks that delta more bytes fit.
func (c *Container) reserve(delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.used+delta > c.meta.Capacity {
		return fmt.Errorf("%w: %d of %d bytes used", container.ErrCapacity, c.used, c.meta.Capacity)
	}
	return nil
}

func (c *Container) notifyLocked() {
	close(c.notifyCh)
	c.notifyCh = make(chan struct{})
}

// waitUsage blocks until usage reaches percent of capacity.
func (c *Container) waitUsage(ctx context.Context, percent int64) error {
	for {
		if err := c.check(); err != nil {
			return err
		}
		c.mu.Lock()
		used, ch := c.used, c.notifyCh
		c.mu.Unlock()
		if c.meta.Capacity > 0 && used*100/c.meta.Capacity >= percent {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// containerRef is one handle on a shared Container.
type containerRef struct {
	*Container
	closed atomic.Bool
}

// Close releases the handle; the last handle closes storage.
func (r *containerRef) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return container.ErrClosed
	}
	m := r.mgr
	m.mu.Lock()
	r.refs--
	last := r.refs == 0
	if last {
		if cur, ok := m.open[r.path]; ok && cur == r.Container {
			delete(m.open, r.path)
		}
	}
	m.mu.Unlock()
	if !last {
		return nil
	}
	if r.state.Load() == stateGone {
		return nil
	}
	r.log.Debug("container closed", logpkg.Str("path", r.path))
	return r.shutdown()
}
