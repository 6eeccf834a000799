package logmgr

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/microsoft/service-fabric-sub058/internal/asynclock"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
)

// physicalLog is one open container shared by its handles and logical logs.
// It closes the container once both indexes are empty.
type physicalLog struct {
	id           uuid.UUID
	path         string
	reg          *Registry
	c            container.Container
	maxBlockSize int
	log          logpkg.Logger

	lock    *asynclock.Lock
	handles map[uuid.UUID]*PhysicalLogHandle
	logs    map[uuid.UUID]*LogicalLog
}

func newPhysicalLog(r *Registry, c container.Container, path string, maxBlockSize int) *physicalLog {
	return &physicalLog{
		id:           c.ID(),
		path:         path,
		reg:          r,
		c:            c,
		maxBlockSize: maxBlockSize,
		log:          r.log.WithComponent("physical_log").With(logpkg.Str("container", c.ID().String())),
		lock:         asynclock.New("physical_log"),
		handles:      make(map[uuid.UUID]*PhysicalLogHandle),
		logs:         make(map[uuid.UUID]*LogicalLog),
	}
}

// newHandle adds a handle. Callers hold the registry lock.
func (p *physicalLog) newHandle(ctx context.Context) (*PhysicalLogHandle, error) {
	if err := p.lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer p.lock.Unlock()
	h := &PhysicalLogHandle{id: uuid.New(), p: p}
	p.handles[h.id] = h
	return h, nil
}

// release runs fn under the registry and physical log locks, then tears the
// physical log down if it has no handles and no logs left.
func (p *physicalLog) release(ctx context.Context, fn func() error) error {
	ctx = context.WithoutCancel(ctx)
	r := p.reg
	if err := r.lock.Lock(ctx); err != nil {
		return err
	}
	defer r.lock.Unlock()
	if err := p.lock.Lock(ctx); err != nil {
		return err
	}
	err := fn()
	empty := len(p.handles) == 0 && len(p.logs) == 0
	p.lock.Unlock()
	if err != nil || !empty {
		return err
	}

	if cur, ok := r.phys[p.id]; ok && cur == p {
		delete(r.phys, p.id)
	}
	if cerr := p.c.Close(ctx); cerr != nil {
		if !errors.Is(cerr, container.ErrGone) {
			return cerr
		}
		p.log.Warn("container already deleted", logpkg.Str("path", p.path))
	} else {
		p.log.Debug("container closed", logpkg.Str("path", p.path))
	}
	return r.maybeDisconnect()
}

func (p *physicalLog) leaks() []string {
	if err := p.lock.Lock(context.Background()); err != nil {
		return nil
	}
	defer p.lock.Unlock()
	out := []string{"physical log " + p.id.String()}
	for id := range p.handles {
		out = append(out, "physical log handle "+id.String())
	}
	for id := range p.logs {
		out = append(out, "logical log "+id.String())
	}
	return out
}

// PhysicalLogHandle is a reference on an open physical log.
type PhysicalLogHandle struct {
	id     uuid.UUID
	p      *physicalLog
	closed bool // guarded by p.lock
}

// ID identifies the handle.
func (h *PhysicalLogHandle) ID() uuid.UUID { return h.id }

// ContainerID is the identifier of the underlying container.
func (h *PhysicalLogHandle) ContainerID() uuid.UUID { return h.p.id }

// IsFunctional reports whether the container still accepts operations.
func (h *PhysicalLogHandle) IsFunctional() bool { return h.p.c.IsFunctional() }

// Stat reports container usage.
func (h *PhysicalLogHandle) Stat(ctx context.Context) (container.Stats, error) {
	return h.p.c.Stat(ctx)
}

func (h *PhysicalLogHandle) lock(ctx context.Context) error {
	if err := h.p.lock.Lock(ctx); err != nil {
		return err
	}
	if h.closed {
		h.p.lock.Unlock()
		return ErrClosed
	}
	return nil
}

// CreateLogicalLog creates logical log id, optionally bound to alias, and
// opens it. A stream left behind by a failed create is removed.
func (h *PhysicalLogHandle) CreateLogicalLog(ctx context.Context, id uuid.UUID, alias string, opts LogOptions) (*LogicalLog, error) {
	p := h.p
	if id == uuid.Nil {
		id = uuid.New()
	}
	opts = opts.withDefaults(p.reg.cfg, p.maxBlockSize)
	if opts.MaxBlockSize > p.maxBlockSize {
		return nil, fmt.Errorf("%w: block size %d exceeds container limit %d", container.ErrInvalid, opts.MaxBlockSize, p.maxBlockSize)
	}
	if err := h.lock(ctx); err != nil {
		return nil, err
	}
	defer p.lock.Unlock()
	if _, ok := p.logs[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAccessDenied, id)
	}
	s, err := p.c.CreateStream(ctx, id, alias)
	if err != nil {
		return nil, err
	}
	l, err := newLogicalLog(p, h.id, s, opts)
	if err == nil {
		err = l.onCreated()
	}
	if err != nil {
		if l != nil {
			l.cancel()
		}
		rctx := context.WithoutCancel(ctx)
		_ = s.Close(rctx)
		if derr := p.c.DeleteStream(rctx, id); derr != nil {
			p.log.Debug("rollback of failed create", logpkg.Str("log", id.String()), logpkg.Err(derr))
		}
		return nil, err
	}
	p.logs[id] = l
	p.reg.m.LogsOpen.Inc()
	p.log.Debug("logical log created", logpkg.Str("log", id.String()), logpkg.Str("alias", alias))
	return l, nil
}

// OpenLogicalLog opens an existing logical log and recovers its cursors.
func (h *PhysicalLogHandle) OpenLogicalLog(ctx context.Context, id uuid.UUID, opts LogOptions) (*LogicalLog, error) {
	p := h.p
	opts = opts.withDefaults(p.reg.cfg, p.maxBlockSize)
	if err := h.lock(ctx); err != nil {
		return nil, err
	}
	defer p.lock.Unlock()
	if _, ok := p.logs[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAccessDenied, id)
	}
	s, err := p.c.OpenStream(ctx, id)
	if err != nil {
		return nil, err
	}
	l, err := newLogicalLog(p, h.id, s, opts)
	if err == nil {
		err = l.onRecover(ctx)
	}
	if err != nil {
		if l != nil {
			l.cancel()
		}
		_ = s.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	p.logs[id] = l
	p.reg.m.LogsOpen.Inc()
	p.log.Debug("logical log opened", logpkg.Str("log", id.String()), logpkg.Int64("tail", l.tail), logpkg.Int64("head", l.head))
	return l, nil
}

// OpenLogicalLogByAlias resolves alias and opens the log it names.
func (h *PhysicalLogHandle) OpenLogicalLogByAlias(ctx context.Context, alias string, opts LogOptions) (*LogicalLog, error) {
	id, err := h.ResolveAlias(ctx, alias)
	if err != nil {
		return nil, err
	}
	return h.OpenLogicalLog(ctx, id, opts)
}

// DeleteLogicalLog removes a logical log that is not open.
func (h *PhysicalLogHandle) DeleteLogicalLog(ctx context.Context, id uuid.UUID) error {
	p := h.p
	if err := h.lock(ctx); err != nil {
		return err
	}
	defer p.lock.Unlock()
	if _, ok := p.logs[id]; ok {
		return fmt.Errorf("%w: %s", ErrAccessDenied, id)
	}
	return p.c.DeleteStream(ctx, id)
}

// AssignAlias binds alias to id.
func (h *PhysicalLogHandle) AssignAlias(ctx context.Context, alias string, id uuid.UUID) error {
	if err := h.lock(ctx); err != nil {
		return err
	}
	defer h.p.lock.Unlock()
	return h.p.c.AssignAlias(ctx, alias, id)
}

// ResolveAlias returns the logical log id bound to alias.
func (h *PhysicalLogHandle) ResolveAlias(ctx context.Context, alias string) (uuid.UUID, error) {
	if err := h.lock(ctx); err != nil {
		return uuid.Nil, err
	}
	defer h.p.lock.Unlock()
	return h.p.c.ResolveAlias(ctx, alias)
}

// RemoveAlias removes the binding of alias.
func (h *PhysicalLogHandle) RemoveAlias(ctx context.Context, alias string) error {
	if err := h.lock(ctx); err != nil {
		return err
	}
	defer h.p.lock.Unlock()
	return h.p.c.RemoveAlias(ctx, alias)
}

// ReplaceAlias moves target to the log source names, keeping target's old
// binding under backup. An interruption between the steps is repaired by
// RecoverAlias.
func (h *PhysicalLogHandle) ReplaceAlias(ctx context.Context, source, target, backup string) error {
	if err := h.lock(ctx); err != nil {
		return err
	}
	defer h.p.lock.Unlock()
	if err := h.backupAlias(ctx, target, backup); err != nil {
		return err
	}
	return h.promoteAlias(ctx, source, target)
}

// backupAlias binds target's current log to backup and removes target.
func (h *PhysicalLogHandle) backupAlias(ctx context.Context, target, backup string) error {
	c := h.p.c
	id, err := c.ResolveAlias(ctx, target)
	if errors.Is(err, container.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := c.AssignAlias(ctx, backup, id); err != nil {
		return err
	}
	return c.RemoveAlias(ctx, target)
}

// promoteAlias binds source's log to target and removes source.
func (h *PhysicalLogHandle) promoteAlias(ctx context.Context, source, target string) error {
	c := h.p.c
	id, err := c.ResolveAlias(ctx, source)
	if err != nil {
		return err
	}
	if err := c.AssignAlias(ctx, target, id); err != nil {
		return err
	}
	return c.RemoveAlias(ctx, source)
}

// RecoverAlias restores target from backup when a ReplaceAlias was
// interrupted after target was removed. It returns the id target resolves to.
func (h *PhysicalLogHandle) RecoverAlias(ctx context.Context, source, target, backup string) (uuid.UUID, error) {
	if err := h.lock(ctx); err != nil {
		return uuid.Nil, err
	}
	defer h.p.lock.Unlock()
	c := h.p.c
	id, err := c.ResolveAlias(ctx, target)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, container.ErrNotFound) {
		return uuid.Nil, err
	}
	id, err = c.ResolveAlias(ctx, backup)
	if err != nil {
		return uuid.Nil, fmt.Errorf("recover alias %q from %q: %w", target, backup, err)
	}
	if err := c.AssignAlias(ctx, target, id); err != nil {
		return uuid.Nil, err
	}
	h.p.log.Info("alias recovered", logpkg.Str("alias", target), logpkg.Str("from", backup), logpkg.Str("source", source))
	return id, nil
}

// Close releases the handle. Logical logs opened through it stay open.
func (h *PhysicalLogHandle) Close(ctx context.Context) error {
	return h.p.release(ctx, func() error {
		if h.closed {
			return ErrClosed
		}
		h.closed = true
		delete(h.p.handles, h.id)
		return nil
	})
}
