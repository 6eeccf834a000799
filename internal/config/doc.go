// Package config provides loading and environment overlay for logmux
// configuration: container defaults, per-log tuning, driver location and
// logging.
//
// Example:
//
//	cfg, err := config.Load("/etc/logmux.yaml")
//	if err != nil { /* handle */ }
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { /* handle */ }
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close(ctx)
package config
