package grpcserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	cfgpkg "github.com/microsoft/service-fabric-sub058/internal/config"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	"github.com/microsoft/service-fabric-sub058/internal/container/local"
	"github.com/microsoft/service-fabric-sub058/internal/container/remote"
	"github.com/microsoft/service-fabric-sub058/internal/container/wire"
	"github.com/microsoft/service-fabric-sub058/internal/logmgr"
	"github.com/microsoft/service-fabric-sub058/internal/record"
	"github.com/microsoft/service-fabric-sub058/internal/runtime"
	"github.com/microsoft/service-fabric-sub058/pkg/id"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

func dialer(s *grpc.Server) func(context.Context, string) (net.Conn, error) {
	lis := bufconn.Listen(bufSize)
	go func() { _ = s.Serve(lis) }()
	return func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
}

func testConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.PreferDriver = false
	cfg.Fsync = "never"
	cfg.Container.Capacity = 64 << 20
	cfg.Container.MaxBlockSize = 64 << 10
	cfg.Log.MaxBlockSize = 16 << 10
	return cfg
}

// startDriver serves a fresh runtime over bufconn and returns a client
// connection to it.
func startDriver(t *testing.T) (*runtime.Runtime, *grpc.ClientConn) {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	srv := New(rt)
	d := dialer(srv.grpc)
	conn, err := grpc.NewClient("passthrough:///bufnet", grpc.WithContextDialer(d), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Close()
		_ = rt.Close()
	})
	return rt, conn
}

func TestHealthOverGRPC(t *testing.T) {
	_, conn := startDriver(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: wire.ServiceName})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v", res.GetStatus())
	}
}

func TestDriverStreamRoundTrip(t *testing.T) {
	rt, conn := startDriver(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mgr := remote.NewManager(conn, nil)
	defer mgr.Close()

	path := filepath.Join(rt.Config().DataDir, "c1")
	c, err := mgr.CreateContainer(ctx, container.CreateOptions{Path: path, ID: uuid.New(), Capacity: 1 << 20, MaxStreams: 2, MaxBlockSize: 16384})
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	id := uuid.New()
	s, err := c.CreateStream(ctx, id, "main")
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}
	if got, err := c.ResolveAlias(ctx, "main"); err != nil || got != id {
		t.Fatalf("resolve alias = %v, %v", got, err)
	}

	payload := []byte("over the wire")
	w, err := record.NewWriteBuffer(container.ReservedMetadataSize, 16384, 0, 1, id)
	if err != nil {
		t.Fatalf("write buffer: %v", err)
	}
	w.Put(payload)
	sealed := w.Seal(-1, false)
	if err := s.Write(ctx, container.Record{Version: 1, Asn: 0, Metadata: sealed.Metadata, Payload: sealed.Payload}); err != nil {
		t.Fatalf("write: %v", err)
	}
	blk, err := s.ReadContaining(ctx, 3)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if blk.Asn != 0 || blk.Limit != -1 || blk.Version != 1 {
		t.Fatalf("unexpected block asn=%d limit=%d version=%d", blk.Asn, blk.Limit, blk.Version)
	}
	rb, err := record.OpenForRead(record.ReadSpec{Reserve: container.ReservedMetadataSize, LogID: id, Position: 3},
		record.Carrier{Metadata: blk.Metadata, Payload: blk.Payload, Limit: blk.Limit})
	if err != nil {
		t.Fatalf("open record: %v", err)
	}
	got := make([]byte, rb.Remaining())
	rb.Get(got)
	if !bytes.Equal(got, payload[3:]) {
		t.Fatalf("read %q", got)
	}

	out, err := s.Control(ctx, container.ControlQueryVersion, nil)
	if err != nil {
		t.Fatalf("control: %v", err)
	}
	v, err := container.DecodeVersionInfo(out)
	if err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if v.Version != local.Version {
		t.Fatalf("version = %+v", v)
	}

	if _, err := c.OpenStream(ctx, uuid.New()); !errors.Is(err, container.ErrNotFound) {
		t.Fatalf("open missing stream: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close stream: %v", err)
	}
	if err := mgr.DeleteContainer(ctx, path, c.ID()); err != nil {
		t.Fatalf("delete container: %v", err)
	}
	if _, err := c.Stat(ctx); !errors.Is(err, container.ErrGone) {
		t.Fatalf("stat after delete: %v", err)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("close deleted container: %v", err)
	}
}

func TestLogicalLogOverDriver(t *testing.T) {
	rt, conn := startDriver(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cfg := rt.Config()
	reg := logmgr.New(logmgr.Options{
		Config: cfg,
		Connect: func(context.Context) (container.Manager, error) {
			return remote.NewManager(conn, nil), nil
		},
	})

	mh, err := reg.Open(ctx)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	if mh.Implementation() != "driver" {
		t.Fatalf("implementation = %q", mh.Implementation())
	}
	ph, err := mh.CreatePhysicalLog(ctx, filepath.Join(cfg.DataDir, "p"), uuid.Nil, logmgr.ContainerOptions{})
	if err != nil {
		t.Fatalf("create physical log: %v", err)
	}
	l, err := ph.CreateLogicalLog(ctx, uuid.Nil, "orders", logmgr.LogOptions{})
	if err != nil {
		t.Fatalf("create logical log: %v", err)
	}
	data := bytes.Repeat([]byte("0123456789abcdef"), 3000)
	if err := l.Append(ctx, data); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.FlushWithBarrier(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := l.SeekTo(0); err != nil {
		t.Fatalf("seek: %v", err)
	}
	got, err := io.ReadAll(l.Reader(ctx))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("read %d bytes, want %d", len(got), len(data))
	}
	v, err := l.DriverVersion(ctx)
	if err != nil {
		t.Fatalf("driver version: %v", err)
	}
	if v.Driver != "local" {
		t.Fatalf("driver = %+v", v)
	}

	id := l.ID()
	if err := l.Close(ctx); err != nil {
		t.Fatalf("close log: %v", err)
	}
	l, err = ph.OpenLogicalLogByAlias(ctx, "orders", logmgr.LogOptions{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if l.ID() != id || l.Length() != int64(len(data)) {
		t.Fatalf("recovered id=%s length=%d", l.ID(), l.Length())
	}
	if err := l.Close(ctx); err != nil {
		t.Fatalf("close log: %v", err)
	}
	if err := ph.Close(ctx); err != nil {
		t.Fatalf("close physical log: %v", err)
	}
	if err := mh.Close(ctx); err != nil {
		t.Fatalf("close handle: %v", err)
	}
	if leaks := reg.LeakCheck(); len(leaks) != 0 {
		t.Fatalf("leaks: %v", leaks)
	}
}

func TestUnknownHandlesAreRejected(t *testing.T) {
	_, conn := startDriver(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cli := wire.NewDriverClient(conn)

	stale := id.NewGenerator().Next()
	if _, err := cli.CloseStream(ctx, &wire.HandleRequest{Handle: stale}); !errors.Is(err, container.ErrClosed) {
		t.Fatalf("close unknown stream: %v", err)
	}
	if _, err := cli.StatContainer(ctx, &wire.HandleRequest{Handle: stale}); !errors.Is(err, container.ErrClosed) {
		t.Fatalf("stat unknown container: %v", err)
	}
}
