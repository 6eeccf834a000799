package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	clientcmd "github.com/microsoft/service-fabric-sub058/internal/cmd/client"
	transports "github.com/microsoft/service-fabric-sub058/internal/cmd/client/transports"
	serverrun "github.com/microsoft/service-fabric-sub058/internal/cmd/server"
	cfgpkg "github.com/microsoft/service-fabric-sub058/internal/config"
	"github.com/microsoft/service-fabric-sub058/internal/logmgr"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	// The client logs to stderr at LOGMUX_LOG_LEVEL (default warn) so command
	// output stays clean.
	level := os.Getenv("LOGMUX_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.WarnLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	var configPath string
	loadConfig := func() (cfgpkg.Config, error) {
		cfg, err := cfgpkg.Load(configPath)
		if err != nil {
			return cfg, err
		}
		cfgpkg.FromEnv(&cfg)
		return cfg, cfg.Validate()
	}

	rootCmd := &cobra.Command{
		Use:   "logmux",
		Short: "logmux logical-log CLI",
		Long:  "logmux multiplexes append-only logical logs over block containers. This CLI runs the container driver and manages containers, logs and aliases.",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("LOGMUX_CONFIG"), "Config file (JSON or YAML)")

	// driver start
	driverCmd := &cobra.Command{Use: "driver", Short: "Container driver commands"}
	driverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the container driver (unix socket gRPC, optional HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			socket, _ := cmd.Flags().GetString("socket")
			httpAddr, _ := cmd.Flags().GetString("http")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			fsync, _ := cmd.Flags().GetString("fsync")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if fsync != "" {
				cfg.Fsync = fsync
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if logFormat != "" {
				cfg.Logging.Format = logFormat
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{
				Config:   cfg,
				Socket:   socket,
				HTTPAddr: httpAddr,
			}); err != nil {
				return fmt.Errorf("driver error: %w", err)
			}
			return nil
		},
	}
	driverStartCmd.Flags().String("socket", "", "Driver unix socket (default <data-dir>/driver.sock)")
	driverStartCmd.Flags().String("http", os.Getenv("LOGMUX_HTTP"), "Admin HTTP listen address for health and metrics (optional)")
	driverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	driverStartCmd.Flags().String("fsync", "", "Fsync mode: always|interval|never")
	driverStartCmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	driverStartCmd.Flags().String("log-format", "", "Log format: text|json (default text)")
	driverCmd.AddCommand(driverStartCmd)
	rootCmd.AddCommand(driverCmd)

	// One registry per process; each client command opens and closes through it.
	var reg *logmgr.Registry
	openTransport := func() (transports.LogTransport, error) {
		if reg == nil {
			cfg, err := loadConfig()
			if err != nil {
				return nil, err
			}
			reg = logmgr.New(logmgr.Options{Config: cfg, Logger: logger})
		}
		return transports.NewRegistryTransport(reg), nil
	}
	defaultContainer := func() string {
		cfg := cfgpkg.Default()
		cfgpkg.FromEnv(&cfg)
		return cfg.ContainerPath("default")
	}()

	rootCmd.AddCommand(
		clientcmd.NewContainerCommand(openTransport, defaultContainer),
		clientcmd.NewLogCommand(openTransport, defaultContainer),
		clientcmd.NewAliasCommand(openTransport, defaultContainer),
	)

	err = rootCmd.Execute()
	if reg != nil {
		if leaks := reg.LeakCheck(); len(leaks) > 0 {
			logger.Warn("objects left open at exit", logpkg.Any("objects", leaks))
		}
	}
	if err != nil {
		os.Exit(1)
	}
}
