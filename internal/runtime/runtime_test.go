package runtime

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	cfgpkg "github.com/microsoft/service-fabric-sub058/internal/config"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	"github.com/microsoft/service-fabric-sub058/internal/logmgr"
)

func testConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Fsync = "never"
	cfg.Container.Capacity = 64 << 20
	cfg.Container.MaxBlockSize = 64 << 10
	cfg.Log.MaxBlockSize = 16 << 10
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rt.CheckHealth(context.Background()); err == nil {
		t.Fatalf("expected health error after close")
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fsync = "sometimes"
	if _, err := Open(Options{Config: cfg}); err == nil {
		t.Fatalf("expected error for invalid fsync mode")
	}
}

func TestRegistrySharesContainers(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	rt, err := Open(Options{Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	path := filepath.Join(cfg.DataDir, "shared")
	c, err := rt.Containers().CreateContainer(ctx, container.CreateOptions{
		Path:         path,
		Capacity:     int64(cfg.Container.Capacity),
		MaxStreams:   4,
		MaxBlockSize: int(cfg.Container.MaxBlockSize),
	})
	if err != nil {
		t.Fatalf("create container: %v", err)
	}

	mh, err := rt.Registry().Open(ctx)
	if err != nil {
		t.Fatalf("registry open: %v", err)
	}
	if got := mh.Implementation(); got != "local" {
		t.Fatalf("implementation = %q", got)
	}
	ph, err := mh.OpenPhysicalLog(ctx, path, c.ID())
	if err != nil {
		t.Fatalf("open physical log: %v", err)
	}
	l, err := ph.CreateLogicalLog(ctx, uuid.Nil, "a", logmgr.LogOptions{})
	if err != nil {
		t.Fatalf("create logical log: %v", err)
	}
	if err := l.Append(ctx, []byte("hello")); err != nil {
		t.Fatalf("append: %v", err)
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
	if rt.Registry().Connected() {
		t.Fatalf("registry still connected")
	}
	if leaks := rt.Registry().LeakCheck(); len(leaks) != 0 {
		t.Fatalf("leaks: %v", leaks)
	}
	if !c.IsFunctional() {
		t.Fatalf("container closed by registry teardown")
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("close container: %v", err)
	}
}
