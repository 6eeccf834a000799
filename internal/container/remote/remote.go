// Package remote implements the container contract as a client of the
// container driver's gRPC service.
package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	"github.com/microsoft/service-fabric-sub058/internal/container/wire"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ErrDriverUnavailable is returned by Dial when the driver socket exists but
// nothing answers on it. It matches os.ErrNotExist so callers can fall back
// to the in-process container.
var ErrDriverUnavailable = fmt.Errorf("remote: driver unavailable: %w", os.ErrNotExist)

// functionalTimeout bounds the IsFunctional probes.
const functionalTimeout = 2 * time.Second

// Options configure Dial.
type Options struct {
	Socket      string
	DialTimeout time.Duration
	Logger      logpkg.Logger
}

// Manager is a container.Manager backed by the driver.
type Manager struct {
	cc     grpc.ClientConnInterface
	conn   *grpc.ClientConn
	client *wire.DriverClient
	log    logpkg.Logger
	closed atomic.Bool
}

var _ container.Manager = (*Manager)(nil)

// Dial connects to the driver listening on opts.Socket and checks that it is
// serving. A missing socket yields an error matching os.ErrNotExist.
func Dial(ctx context.Context, opts Options) (*Manager, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 2 * time.Second
	}
	if _, err := os.Stat(opts.Socket); err != nil {
		return nil, fmt.Errorf("remote: driver socket %s: %w", opts.Socket, err)
	}
	conn, err := grpc.NewClient("unix://"+opts.Socket, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	res, err := healthpb.NewHealthClient(conn).Check(pingCtx, &healthpb.HealthCheckRequest{Service: wire.ServiceName})
	if err != nil || res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		_ = conn.Close()
		if err == nil {
			err = errors.New(res.GetStatus().String())
		}
		return nil, fmt.Errorf("%w: %v", ErrDriverUnavailable, err)
	}
	m := NewManager(conn, opts.Logger)
	m.conn = conn
	return m, nil
}

// NewManager wraps an existing connection. The caller keeps ownership of cc.
func NewManager(cc grpc.ClientConnInterface, log logpkg.Logger) *Manager {
	if log == nil {
		log = logpkg.NewNopLogger()
	}
	return &Manager{cc: cc, client: wire.NewDriverClient(cc), log: log.WithComponent("remote")}
}

// Name identifies the implementation.
func (m *Manager) Name() string { return "driver" }

func (m *Manager) check() error {
	if m.closed.Load() {
		return container.ErrClosed
	}
	return nil
}

// CreateContainer asks the driver to create a container.
func (m *Manager) CreateContainer(ctx context.Context, opts container.CreateOptions) (container.Container, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	res, err := m.client.CreateContainer(ctx, &wire.CreateContainerRequest{
		Path:         opts.Path,
		ID:           opts.ID,
		Capacity:     opts.Capacity,
		MaxStreams:   opts.MaxStreams,
		MaxBlockSize: opts.MaxBlockSize,
	})
	if err != nil {
		return nil, err
	}
	return &Container{m: m, handle: res.Handle, id: res.ID}, nil
}

// OpenContainer opens an existing container through the driver.
func (m *Manager) OpenContainer(ctx context.Context, path string, id uuid.UUID) (container.Container, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	res, err := m.client.OpenContainer(ctx, &wire.OpenContainerRequest{Path: path, ID: id})
	if err != nil {
		return nil, err
	}
	return &Container{m: m, handle: res.Handle, id: res.ID}, nil
}

// DeleteContainer deletes a container through the driver.
func (m *Manager) DeleteContainer(ctx context.Context, path string, id uuid.UUID) error {
	if err := m.check(); err != nil {
		return err
	}
	_, err := m.client.DeleteContainer(ctx, &wire.DeleteContainerRequest{Path: path, ID: id})
	return err
}

// Close closes the connection if Dial created it.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	if m.conn != nil {
		m.log.Debug("driver connection closed")
		return m.conn.Close()
	}
	return nil
}

// Container is a driver-side container handle.
type Container struct {
	m      *Manager
	handle wire.Handle
	id     uuid.UUID
	closed atomic.Bool
}

var _ container.Container = (*Container)(nil)

func (c *Container) ID() uuid.UUID { return c.id }

func (c *Container) check() error {
	if c.closed.Load() {
		return container.ErrClosed
	}
	return c.m.check()
}

func (c *Container) CreateStream(ctx context.Context, id uuid.UUID, alias string) (container.Stream, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	res, err := c.m.client.CreateStream(ctx, &wire.StreamRequest{Container: c.handle, ID: id, Alias: alias})
	if err != nil {
		return nil, err
	}
	return &Stream{m: c.m, handle: res.Handle, id: res.ID}, nil
}

func (c *Container) OpenStream(ctx context.Context, id uuid.UUID) (container.Stream, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	res, err := c.m.client.OpenStream(ctx, &wire.StreamRequest{Container: c.handle, ID: id})
	if err != nil {
		return nil, err
	}
	return &Stream{m: c.m, handle: res.Handle, id: res.ID}, nil
}

func (c *Container) DeleteStream(ctx context.Context, id uuid.UUID) error {
	if err := c.check(); err != nil {
		return err
	}
	_, err := c.m.client.DeleteStream(ctx, &wire.StreamRequest{Container: c.handle, ID: id})
	return err
}

func (c *Container) AssignAlias(ctx context.Context, alias string, id uuid.UUID) error {
	if err := c.check(); err != nil {
		return err
	}
	_, err := c.m.client.AssignAlias(ctx, &wire.AliasRequest{Container: c.handle, Alias: alias, ID: id})
	return err
}

func (c *Container) ResolveAlias(ctx context.Context, alias string) (uuid.UUID, error) {
	if err := c.check(); err != nil {
		return uuid.Nil, err
	}
	res, err := c.m.client.ResolveAlias(ctx, &wire.AliasRequest{Container: c.handle, Alias: alias})
	if err != nil {
		return uuid.Nil, err
	}
	return res.ID, nil
}

func (c *Container) RemoveAlias(ctx context.Context, alias string) error {
	if err := c.check(); err != nil {
		return err
	}
	_, err := c.m.client.RemoveAlias(ctx, &wire.AliasRequest{Container: c.handle, Alias: alias})
	return err
}

func (c *Container) Stat(ctx context.Context) (container.Stats, error) {
	if err := c.check(); err != nil {
		return container.Stats{}, err
	}
	res, err := c.m.client.StatContainer(ctx, &wire.HandleRequest{Handle: c.handle})
	if err != nil {
		return container.Stats{}, err
	}
	return container.Stats{
		ID:           res.ID,
		Path:         res.Path,
		Capacity:     res.Capacity,
		Used:         res.Used,
		Streams:      res.Streams,
		MaxStreams:   res.MaxStreams,
		MaxBlockSize: res.MaxBlockSize,
	}, nil
}

// IsFunctional asks the driver; an unreachable driver counts as not
// functional.
func (c *Container) IsFunctional() bool {
	if c.check() != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), functionalTimeout)
	defer cancel()
	res, err := c.m.client.ContainerFunctional(ctx, &wire.HandleRequest{Handle: c.handle})
	return err == nil && res.Functional
}

func (c *Container) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return container.ErrClosed
	}
	if c.m.check() != nil {
		return nil
	}
	_, err := c.m.client.CloseContainer(ctx, &wire.HandleRequest{Handle: c.handle})
	return err
}

// Stream is a driver-side stream handle.
type Stream struct {
	m      *Manager
	handle wire.Handle
	id     uuid.UUID
	closed atomic.Bool
}

var _ container.Stream = (*Stream)(nil)

func (s *Stream) ID() uuid.UUID { return s.id }

func (s *Stream) check() error {
	if s.closed.Load() {
		return container.ErrClosed
	}
	return s.m.check()
}

func (s *Stream) Write(ctx context.Context, rec container.Record) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.m.client.Write(ctx, &wire.WriteRequest{
		Stream:   s.handle,
		Version:  rec.Version,
		Asn:      rec.Asn,
		Metadata: rec.Metadata,
		Payload:  rec.Payload,
	})
	return err
}

func fromWireBlock(b wire.Block) container.Block {
	return container.Block{Version: b.Version, Asn: b.Asn, Metadata: b.Metadata, Payload: b.Payload, Limit: b.Limit}
}

func (s *Stream) ReadContaining(ctx context.Context, asn int64) (container.Block, error) {
	if err := s.check(); err != nil {
		return container.Block{}, err
	}
	res, err := s.m.client.ReadContaining(ctx, &wire.ReadRequest{Stream: s.handle, Asn: asn})
	if err != nil {
		return container.Block{}, err
	}
	if len(res.Blocks) != 1 {
		return container.Block{}, fmt.Errorf("remote: read at %d returned %d blocks", asn, len(res.Blocks))
	}
	return fromWireBlock(res.Blocks[0]), nil
}

func (s *Stream) ReadMulti(ctx context.Context, asn int64, budget int) ([]container.Block, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	res, err := s.m.client.ReadMulti(ctx, &wire.ReadRequest{Stream: s.handle, Asn: asn, Budget: budget})
	if err != nil {
		return nil, err
	}
	out := make([]container.Block, len(res.Blocks))
	for i, b := range res.Blocks {
		out[i] = fromWireBlock(b)
	}
	return out, nil
}

func (s *Stream) Truncate(ctx context.Context, head, tail int64) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.m.client.Truncate(ctx, &wire.TruncateRequest{Stream: s.handle, Head: head, Tail: tail})
	return err
}

func (s *Stream) Control(ctx context.Context, code container.ControlCode, in []byte) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	res, err := s.m.client.Control(ctx, &wire.ControlRequest{Stream: s.handle, Code: uint32(code), Input: in})
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

func (s *Stream) WaitNotification(ctx context.Context, kind container.NotificationKind, value int64) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.m.client.WaitNotification(ctx, &wire.WaitRequest{Stream: s.handle, Kind: uint32(kind), Value: value})
	return err
}

func (s *Stream) IsFunctional() bool {
	if s.check() != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), functionalTimeout)
	defer cancel()
	res, err := s.m.client.StreamFunctional(ctx, &wire.HandleRequest{Handle: s.handle})
	return err == nil && res.Functional
}

func (s *Stream) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return container.ErrClosed
	}
	if s.m.check() != nil {
		return nil
	}
	_, err := s.m.client.CloseStream(ctx, &wire.HandleRequest{Handle: s.handle})
	return err
}
