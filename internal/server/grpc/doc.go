// Package grpcserver hosts the container driver: it serves the container
// contract over gRPC (see package wire) on top of the runtime's in-process
// container manager, and registers the standard gRPC health service.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	s := grpcserver.New(rt)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, "unix", rt.Config().SocketPath())
package grpcserver
