// Package serverrun exposes the Run entrypoint the CLI uses to start the
// container driver: the gRPC driver service on a unix socket and an
// optional admin HTTP server, with lifecycle and shutdown handling.
//
// Example:
//
//	cfg := config.Default()
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg, HTTPAddr: ":9464"})
package serverrun
