// Package runtime wires configuration, metrics and the in-process container
// manager into a single driver instance. It exposes Open/Close, a health
// check, and a logical-log registry that shares the runtime's containers.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	mh, _ := rt.Registry().Open(context.Background())
//	defer mh.Close(context.Background())
package runtime
