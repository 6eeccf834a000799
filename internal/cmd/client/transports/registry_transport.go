package transports

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	"github.com/microsoft/service-fabric-sub058/internal/logmgr"
)

// RegistryTransport runs every call through a logmgr registry, which picks
// the container driver when one is running and the in-process container
// otherwise. Each call opens what it needs and closes it before returning.
type RegistryTransport struct {
	reg *logmgr.Registry
}

var _ LogTransport = (*RegistryTransport)(nil)

// NewRegistryTransport wraps reg.
func NewRegistryTransport(reg *logmgr.Registry) *RegistryTransport {
	return &RegistryTransport{reg: reg}
}

func (t *RegistryTransport) withManager(ctx context.Context, fn func(*logmgr.ManagerHandle) error) (err error) {
	mh, err := t.reg.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, mh.Close(context.WithoutCancel(ctx))) }()
	return fn(mh)
}

func (t *RegistryTransport) withPhysical(ctx context.Context, path string, fn func(*logmgr.PhysicalLogHandle) error) error {
	return t.withManager(ctx, func(mh *logmgr.ManagerHandle) (err error) {
		ph, err := mh.OpenPhysicalLog(ctx, path, uuid.Nil)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, ph.Close(context.WithoutCancel(ctx))) }()
		return fn(ph)
	})
}

func (t *RegistryTransport) withLog(ctx context.Context, ref LogRef, fn func(*logmgr.LogicalLog) error) error {
	return t.withPhysical(ctx, ref.Container, func(ph *logmgr.PhysicalLogHandle) (err error) {
		var l *logmgr.LogicalLog
		if ref.Alias != "" {
			l, err = ph.OpenLogicalLogByAlias(ctx, ref.Alias, logmgr.LogOptions{})
		} else {
			l, err = ph.OpenLogicalLog(ctx, ref.ID, logmgr.LogOptions{})
		}
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, l.Close(context.WithoutCancel(ctx))) }()
		return fn(l)
	})
}

func info(ctx context.Context, l *logmgr.LogicalLog) (LogInfo, error) {
	v, err := l.DriverVersion(ctx)
	if err != nil {
		return LogInfo{}, err
	}
	return LogInfo{
		ID:           l.ID(),
		Length:       l.Length(),
		Head:         l.HeadTruncationPosition(),
		MaxBlockSize: l.MaximumBlockSize(),
		Driver:       v,
	}, nil
}

func (t *RegistryTransport) Implementation(ctx context.Context) (name string, err error) {
	err = t.withManager(ctx, func(mh *logmgr.ManagerHandle) error {
		name = mh.Implementation()
		return nil
	})
	return name, err
}

func (t *RegistryTransport) CreateContainer(ctx context.Context, spec ContainerSpec) (id uuid.UUID, err error) {
	err = t.withManager(ctx, func(mh *logmgr.ManagerHandle) error {
		ph, err := mh.CreatePhysicalLog(ctx, spec.Path, uuid.Nil, logmgr.ContainerOptions{
			Capacity:     spec.Capacity,
			MaxStreams:   spec.MaxStreams,
			MaxBlockSize: spec.MaxBlockSize,
		})
		if err != nil {
			return err
		}
		id = ph.ContainerID()
		return ph.Close(context.WithoutCancel(ctx))
	})
	return id, err
}

func (t *RegistryTransport) DeleteContainer(ctx context.Context, path string) error {
	return t.withManager(ctx, func(mh *logmgr.ManagerHandle) error {
		return mh.DeletePhysicalLog(ctx, path, uuid.Nil)
	})
}

func (t *RegistryTransport) StatContainer(ctx context.Context, path string) (st container.Stats, err error) {
	err = t.withPhysical(ctx, path, func(ph *logmgr.PhysicalLogHandle) error {
		st, err = ph.Stat(ctx)
		return err
	})
	return st, err
}

func (t *RegistryTransport) CreateLog(ctx context.Context, path, alias string) (id uuid.UUID, err error) {
	err = t.withPhysical(ctx, path, func(ph *logmgr.PhysicalLogHandle) error {
		l, err := ph.CreateLogicalLog(ctx, uuid.Nil, alias, logmgr.LogOptions{})
		if err != nil {
			return err
		}
		id = l.ID()
		return l.Close(context.WithoutCancel(ctx))
	})
	return id, err
}

func (t *RegistryTransport) DeleteLog(ctx context.Context, ref LogRef) error {
	return t.withPhysical(ctx, ref.Container, func(ph *logmgr.PhysicalLogHandle) error {
		id := ref.ID
		if ref.Alias != "" {
			var err error
			if id, err = ph.ResolveAlias(ctx, ref.Alias); err != nil {
				return err
			}
		}
		if err := ph.DeleteLogicalLog(ctx, id); err != nil {
			return err
		}
		if ref.Alias == "" {
			return nil
		}
		if err := ph.RemoveAlias(ctx, ref.Alias); err != nil && !errors.Is(err, container.ErrNotFound) {
			return err
		}
		return nil
	})
}

func (t *RegistryTransport) Info(ctx context.Context, ref LogRef) (out LogInfo, err error) {
	err = t.withLog(ctx, ref, func(l *logmgr.LogicalLog) error {
		out, err = info(ctx, l)
		return err
	})
	return out, err
}

func (t *RegistryTransport) Append(ctx context.Context, ref LogRef, data []byte, barrier bool) (out LogInfo, err error) {
	err = t.withLog(ctx, ref, func(l *logmgr.LogicalLog) error {
		if err := l.Append(ctx, data); err != nil {
			return err
		}
		if barrier {
			err = l.FlushWithBarrier(ctx)
		} else {
			err = l.Flush(ctx)
		}
		if err != nil {
			return err
		}
		out, err = info(ctx, l)
		return err
	})
	return out, err
}

func (t *RegistryTransport) Flush(ctx context.Context, ref LogRef) (out LogInfo, err error) {
	err = t.withLog(ctx, ref, func(l *logmgr.LogicalLog) error {
		if err := l.FlushWithBarrier(ctx); err != nil {
			return err
		}
		out, err = info(ctx, l)
		return err
	})
	return out, err
}

func (t *RegistryTransport) Read(ctx context.Context, ref LogRef, off, n int64) (data []byte, err error) {
	err = t.withLog(ctx, ref, func(l *logmgr.LogicalLog) error {
		if err := l.SeekTo(off); err != nil {
			return err
		}
		var r io.Reader = l.Reader(ctx)
		if n > 0 {
			r = io.LimitReader(r, n)
		}
		data, err = io.ReadAll(r)
		return err
	})
	return data, err
}

func (t *RegistryTransport) TruncateHead(ctx context.Context, ref LogRef, off int64) error {
	return t.withLog(ctx, ref, func(l *logmgr.LogicalLog) error {
		return l.TruncateHead(off)
	})
}

func (t *RegistryTransport) TruncateTail(ctx context.Context, ref LogRef, off int64) error {
	return t.withLog(ctx, ref, func(l *logmgr.LogicalLog) error {
		return l.TruncateTail(ctx, off)
	})
}

func (t *RegistryTransport) AssignAlias(ctx context.Context, path, alias string, id uuid.UUID) error {
	return t.withPhysical(ctx, path, func(ph *logmgr.PhysicalLogHandle) error {
		return ph.AssignAlias(ctx, alias, id)
	})
}

func (t *RegistryTransport) ResolveAlias(ctx context.Context, path, alias string) (id uuid.UUID, err error) {
	err = t.withPhysical(ctx, path, func(ph *logmgr.PhysicalLogHandle) error {
		id, err = ph.ResolveAlias(ctx, alias)
		return err
	})
	return id, err
}

func (t *RegistryTransport) RemoveAlias(ctx context.Context, path, alias string) error {
	return t.withPhysical(ctx, path, func(ph *logmgr.PhysicalLogHandle) error {
		return ph.RemoveAlias(ctx, alias)
	})
}

func (t *RegistryTransport) ReplaceAlias(ctx context.Context, path, source, target, backup string) error {
	return t.withPhysical(ctx, path, func(ph *logmgr.PhysicalLogHandle) error {
		return ph.ReplaceAlias(ctx, source, target, backup)
	})
}

func (t *RegistryTransport) RecoverAlias(ctx context.Context, path, source, target, backup string) (id uuid.UUID, err error) {
	err = t.withPhysical(ctx, path, func(ph *logmgr.PhysicalLogHandle) error {
		id, err = ph.RecoverAlias(ctx, source, target, backup)
		return err
	})
	return id, err
}
