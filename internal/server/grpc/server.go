package grpcserver

import (
	"context"
	"errors"
	"net"
	"os"

	"github.com/microsoft/service-fabric-sub058/internal/container/wire"
	"github.com/microsoft/service-fabric-sub058/internal/runtime"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server owns the gRPC server instance and the driver service.
type Server struct {
	rt     *runtime.Runtime
	driver *driverSvc
	health *health.Server
	grpc   *grpc.Server
	lis    net.Listener
}

// New constructs a gRPC server and registers the driver and health services.
func New(rt *runtime.Runtime, opts ...grpc.ServerOption) *Server {
	s := &Server{
		rt:     rt,
		driver: newDriverSvc(rt.Containers(), rt.Logger().WithComponent("driver")),
		health: health.NewServer(),
		grpc:   grpc.NewServer(opts...),
	}
	wire.RegisterDriverServer(s.grpc, s.driver)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(wire.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// ListenAndServe binds to addr on network ("unix" or "tcp") and serves until
// ctx is done. A stale unix socket file is removed first.
func (s *Server) ListenAndServe(ctx context.Context, network, addr string) error {
	if network == "unix" {
		if err := os.Remove(addr); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	l, err := net.Listen(network, addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.driver.log.Info("driver listening", logpkg.Str("network", network), logpkg.Str("addr", addr))
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server, releases every handle clients left open and closes
// the listener.
func (s *Server) Close() {
	s.health.Shutdown()
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	s.driver.closeAll()
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
