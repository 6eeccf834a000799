package grpcserver

import (
	"context"
	"fmt"
	"sync"

	"github.com/microsoft/service-fabric-sub058/internal/container"
	"github.com/microsoft/service-fabric-sub058/internal/container/wire"
	"github.com/microsoft/service-fabric-sub058/pkg/id"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
)

// driverSvc serves the container contract. Open containers and streams are
// addressed by server-issued handles.
type driverSvc struct {
	mgr container.Manager
	log logpkg.Logger

	ids *id.Generator

	mu         sync.Mutex
	containers map[wire.Handle]container.Container
	streams    map[wire.Handle]container.Stream
}

var _ wire.DriverServer = (*driverSvc)(nil)

func newDriverSvc(mgr container.Manager, log logpkg.Logger) *driverSvc {
	return &driverSvc{
		mgr:        mgr,
		log:        log,
		ids:        id.NewGenerator(),
		containers: make(map[wire.Handle]container.Container),
		streams:    make(map[wire.Handle]container.Stream),
	}
}

func (d *driverSvc) addContainer(c container.Container) wire.Handle {
	h := d.ids.Next()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.containers[h] = c
	return h
}

func (d *driverSvc) addStream(s container.Stream) wire.Handle {
	h := d.ids.Next()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streams[h] = s
	return h
}

func (d *driverSvc) container(h wire.Handle) (container.Container, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.containers[h]
	if !ok {
		return nil, wire.ToStatus(fmt.Errorf("%w: container handle %s", container.ErrClosed, h.Short()))
	}
	return c, nil
}

func (d *driverSvc) stream(h wire.Handle) (container.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.streams[h]
	if !ok {
		return nil, wire.ToStatus(fmt.Errorf("%w: stream handle %s", container.ErrClosed, h.Short()))
	}
	return s, nil
}

// closeAll releases everything clients left open.
func (d *driverSvc) closeAll() {
	d.mu.Lock()
	streams, containers := d.streams, d.containers
	d.streams = map[wire.Handle]container.Stream{}
	d.containers = map[wire.Handle]container.Container{}
	d.mu.Unlock()

	ctx := context.Background()
	for _, s := range streams {
		_ = s.Close(ctx)
	}
	for _, c := range containers {
		_ = c.Close(ctx)
	}
	if n := len(streams) + len(containers); n > 0 {
		d.log.Warn("released abandoned handles", logpkg.Int("streams", len(streams)), logpkg.Int("containers", len(containers)))
	}
}

var ack = &wire.Ack{OK: true}

func (d *driverSvc) CreateContainer(ctx context.Context, in *wire.CreateContainerRequest) (*wire.ContainerReply, error) {
	c, err := d.mgr.CreateContainer(ctx, container.CreateOptions{
		Path:         in.Path,
		ID:           in.ID,
		Capacity:     in.Capacity,
		MaxStreams:   in.MaxStreams,
		MaxBlockSize: in.MaxBlockSize,
	})
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.ContainerReply{Handle: d.addContainer(c), ID: c.ID()}, nil
}

func (d *driverSvc) OpenContainer(ctx context.Context, in *wire.OpenContainerRequest) (*wire.ContainerReply, error) {
	c, err := d.mgr.OpenContainer(ctx, in.Path, in.ID)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.ContainerReply{Handle: d.addContainer(c), ID: c.ID()}, nil
}

func (d *driverSvc) DeleteContainer(ctx context.Context, in *wire.DeleteContainerRequest) (*wire.Ack, error) {
	if err := d.mgr.DeleteContainer(ctx, in.Path, in.ID); err != nil {
		return nil, wire.ToStatus(err)
	}
	return ack, nil
}

func (d *driverSvc) CloseContainer(ctx context.Context, in *wire.HandleRequest) (*wire.Ack, error) {
	d.mu.Lock()
	c, ok := d.containers[in.Handle]
	delete(d.containers, in.Handle)
	d.mu.Unlock()
	if !ok {
		return nil, wire.ToStatus(fmt.Errorf("%w: container handle %s", container.ErrClosed, in.Handle.Short()))
	}
	if err := c.Close(ctx); err != nil {
		return nil, wire.ToStatus(err)
	}
	return ack, nil
}

func (d *driverSvc) StatContainer(ctx context.Context, in *wire.HandleRequest) (*wire.StatsReply, error) {
	c, err := d.container(in.Handle)
	if err != nil {
		return nil, err
	}
	st, err := c.Stat(ctx)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.StatsReply{
		ID:           st.ID,
		Path:         st.Path,
		Capacity:     st.Capacity,
		Used:         st.Used,
		Streams:      st.Streams,
		MaxStreams:   st.MaxStreams,
		MaxBlockSize: st.MaxBlockSize,
	}, nil
}

func (d *driverSvc) ContainerFunctional(ctx context.Context, in *wire.HandleRequest) (*wire.FunctionalReply, error) {
	c, err := d.container(in.Handle)
	if err != nil {
		return &wire.FunctionalReply{}, nil
	}
	return &wire.FunctionalReply{Functional: c.IsFunctional()}, nil
}

func (d *driverSvc) CreateStream(ctx context.Context, in *wire.StreamRequest) (*wire.StreamReply, error) {
	c, err := d.container(in.Container)
	if err != nil {
		return nil, err
	}
	s, err := c.CreateStream(ctx, in.ID, in.Alias)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.StreamReply{Handle: d.addStream(s), ID: s.ID()}, nil
}

func (d *driverSvc) OpenStream(ctx context.Context, in *wire.StreamRequest) (*wire.StreamReply, error) {
	c, err := d.container(in.Container)
	if err != nil {
		return nil, err
	}
	s, err := c.OpenStream(ctx, in.ID)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.StreamReply{Handle: d.addStream(s), ID: s.ID()}, nil
}

func (d *driverSvc) DeleteStream(ctx context.Context, in *wire.StreamRequest) (*wire.Ack, error) {
	c, err := d.container(in.Container)
	if err != nil {
		return nil, err
	}
	if err := c.DeleteStream(ctx, in.ID); err != nil {
		return nil, wire.ToStatus(err)
	}
	return ack, nil
}

func (d *driverSvc) AssignAlias(ctx context.Context, in *wire.AliasRequest) (*wire.Ack, error) {
	c, err := d.container(in.Container)
	if err != nil {
		return nil, err
	}
	if err := c.AssignAlias(ctx, in.Alias, in.ID); err != nil {
		return nil, wire.ToStatus(err)
	}
	return ack, nil
}

func (d *driverSvc) ResolveAlias(ctx context.Context, in *wire.AliasRequest) (*wire.AliasReply, error) {
	c, err := d.container(in.Container)
	if err != nil {
		return nil, err
	}
	id, err := c.ResolveAlias(ctx, in.Alias)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.AliasReply{ID: id}, nil
}

func (d *driverSvc) RemoveAlias(ctx context.Context, in *wire.AliasRequest) (*wire.Ack, error) {
	c, err := d.container(in.Container)
	if err != nil {
		return nil, err
	}
	if err := c.RemoveAlias(ctx, in.Alias); err != nil {
		return nil, wire.ToStatus(err)
	}
	return ack, nil
}

func (d *driverSvc) Write(ctx context.Context, in *wire.WriteRequest) (*wire.Ack, error) {
	s, err := d.stream(in.Stream)
	if err != nil {
		return nil, err
	}
	rec := container.Record{Version: in.Version, Asn: in.Asn, Metadata: in.Metadata, Payload: in.Payload}
	if err := s.Write(ctx, rec); err != nil {
		return nil, wire.ToStatus(err)
	}
	return ack, nil
}

func toWireBlock(b container.Block) wire.Block {
	return wire.Block{Version: b.Version, Asn: b.Asn, Metadata: b.Metadata, Payload: b.Payload, Limit: b.Limit}
}

func (d *driverSvc) ReadContaining(ctx context.Context, in *wire.ReadRequest) (*wire.ReadReply, error) {
	s, err := d.stream(in.Stream)
	if err != nil {
		return nil, err
	}
	b, err := s.ReadContaining(ctx, in.Asn)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.ReadReply{Blocks: []wire.Block{toWireBlock(b)}}, nil
}

func (d *driverSvc) ReadMulti(ctx context.Context, in *wire.ReadRequest) (*wire.ReadReply, error) {
	s, err := d.stream(in.Stream)
	if err != nil {
		return nil, err
	}
	blocks, err := s.ReadMulti(ctx, in.Asn, in.Budget)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	out := &wire.ReadReply{Blocks: make([]wire.Block, len(blocks))}
	for i, b := range blocks {
		out.Blocks[i] = toWireBlock(b)
	}
	return out, nil
}

func (d *driverSvc) Truncate(ctx context.Context, in *wire.TruncateRequest) (*wire.Ack, error) {
	s, err := d.stream(in.Stream)
	if err != nil {
		return nil, err
	}
	if err := s.Truncate(ctx, in.Head, in.Tail); err != nil {
		return nil, wire.ToStatus(err)
	}
	return ack, nil
}

func (d *driverSvc) Control(ctx context.Context, in *wire.ControlRequest) (*wire.ControlReply, error) {
	s, err := d.stream(in.Stream)
	if err != nil {
		return nil, err
	}
	code := container.ControlCode(in.Code)
	if code == container.ControlQueryVersion {
		return &wire.ControlReply{Output: container.VersionInfo{Driver: "driver", Version: Version}.Encode()}, nil
	}
	out, err := s.Control(ctx, code, in.Input)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.ControlReply{Output: out}, nil
}

func (d *driverSvc) WaitNotification(ctx context.Context, in *wire.WaitRequest) (*wire.Ack, error) {
	s, err := d.stream(in.Stream)
	if err != nil {
		return nil, err
	}
	if err := s.WaitNotification(ctx, container.NotificationKind(in.Kind), in.Value); err != nil {
		return nil, wire.ToStatus(err)
	}
	return ack, nil
}

func (d *driverSvc) StreamFunctional(ctx context.Context, in *wire.HandleRequest) (*wire.FunctionalReply, error) {
	s, err := d.stream(in.Handle)
	if err != nil {
		return &wire.FunctionalReply{}, nil
	}
	return &wire.FunctionalReply{Functional: s.IsFunctional()}, nil
}

func (d *driverSvc) CloseStream(ctx context.Context, in *wire.HandleRequest) (*wire.Ack, error) {
	d.mu.Lock()
	s, ok := d.streams[in.Handle]
	delete(d.streams, in.Handle)
	d.mu.Unlock()
	if !ok {
		return nil, wire.ToStatus(fmt.Errorf("%w: stream handle %s", container.ErrClosed, in.Handle.Short()))
	}
	if err := s.Close(ctx); err != nil {
		return nil, wire.ToStatus(err)
	}
	return ack, nil
}

// Version is reported to clients through ControlQueryVersion.
const Version = "logmux-driver/1"
