package client

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	transports "github.com/microsoft/service-fabric-sub058/internal/cmd/client/transports"
	cfgpkg "github.com/microsoft/service-fabric-sub058/internal/config"
	"github.com/microsoft/service-fabric-sub058/internal/logmgr"
)

type cli struct {
	t         *testing.T
	reg       *logmgr.Registry
	open      TransportFunc
	container string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.PreferDriver = false
	cfg.Fsync = "never"
	cfg.Container.Capacity = 16 << 20
	cfg.Container.MaxBlockSize = 64 << 10
	cfg.Log.MaxBlockSize = 16 << 10
	reg := logmgr.New(logmgr.Options{Config: cfg})
	return &cli{
		t:         t,
		reg:       reg,
		open:      func() (transports.LogTransport, error) { return transports.NewRegistryTransport(reg), nil },
		container: filepath.Join(cfg.DataDir, "c"),
	}
}

// run executes args against a fresh command tree and returns its output.
func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	root := NewRoot(c.open, c.container)
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("%s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func (c *cli) mustJSON(args ...string) map[string]any {
	c.t.Helper()
	out := c.mustRun(args...)
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		c.t.Fatalf("%s: decode %q: %v", strings.Join(args, " "), out, err)
	}
	return m
}

func TestLogLifecycleThroughCLI(t *testing.T) {
	c := newCLI(t)
	c.mustJSON("container", "create", "--max-streams", "4")
	created := c.mustJSON("log", "create", "-l", "orders")
	if created["id"] == "" {
		t.Fatalf("no id: %v", created)
	}

	c.mustJSON("log", "append", "-l", "orders", "--data", "hello")
	info := c.mustJSON("log", "append", "-l", "orders", "--data", " world", "--barrier=false")
	if info["length"].(float64) != 11 {
		t.Fatalf("length after append: %v", info)
	}
	if info["driver"] != "local" {
		t.Fatalf("driver: %v", info)
	}

	if got := c.mustRun("log", "read", "-l", "orders"); got != "hello world" {
		t.Fatalf("read = %q", got)
	}
	if got := c.mustRun("log", "read", "-l", "orders", "--offset", "6", "--length", "3"); got != "wor" {
		t.Fatalf("ranged read = %q", got)
	}

	c.mustJSON("log", "truncate-head", "-l", "orders", "--offset", "6")
	if info := c.mustJSON("log", "info", "--id", created["id"].(string)); info["head"].(float64) != 6 {
		t.Fatalf("head after truncate: %v", info)
	}
	if _, err := c.run("log", "read", "-l", "orders", "--offset", "2"); err == nil {
		t.Fatalf("expected read below head to fail")
	}

	c.mustJSON("log", "truncate-tail", "-l", "orders", "--offset", "9")
	if got := c.mustRun("log", "read", "-l", "orders", "--offset", "6"); got != "wor" {
		t.Fatalf("read after tail truncate = %q", got)
	}
	c.mustJSON("log", "flush", "-l", "orders")

	stat := c.mustJSON("container", "stat")
	if stat["streams"].(float64) != 1 {
		t.Fatalf("stat: %v", stat)
	}
	c.mustJSON("log", "delete", "-l", "orders")
	if _, err := c.run("alias", "resolve", "orders"); err == nil {
		t.Fatalf("expected alias to be gone")
	}
	c.mustJSON("container", "delete")
	if leaks := c.reg.LeakCheck(); len(leaks) != 0 {
		t.Fatalf("leaks: %v", leaks)
	}
}

func TestAliasCommands(t *testing.T) {
	c := newCLI(t)
	c.mustJSON("container", "create")
	a := c.mustJSON("log", "create", "-l", "live")["id"].(string)
	b := c.mustJSON("log", "create", "-l", "next")["id"].(string)

	c.mustJSON("alias", "replace", "next", "live", "old")
	if got := c.mustJSON("alias", "resolve", "live")["id"]; got != b {
		t.Fatalf("live -> %v, want %s", got, b)
	}
	if got := c.mustJSON("alias", "resolve", "old")["id"]; got != a {
		t.Fatalf("old -> %v, want %s", got, a)
	}
	if _, err := c.run("alias", "resolve", "next"); err == nil {
		t.Fatalf("expected source alias removed")
	}

	c.mustJSON("alias", "remove", "live")
	if got := c.mustJSON("alias", "recover", "next", "live", "old")["id"]; got != a {
		t.Fatalf("recovered live -> %v, want %s", got, a)
	}
	c.mustJSON("alias", "assign", "extra", b)
	if got := c.mustJSON("alias", "resolve", "extra")["id"]; got != b {
		t.Fatalf("extra -> %v", got)
	}
}

func TestLogRefValidation(t *testing.T) {
	c := newCLI(t)
	if _, err := c.run("log", "info"); err == nil || !strings.Contains(err.Error(), "--log or --id") {
		t.Fatalf("expected selector error, got %v", err)
	}
	if _, err := c.run("log", "append", "-l", "x"); err == nil {
		t.Fatalf("expected payload error")
	}
	if _, err := c.run("log", "info", "--id", "nope"); err == nil {
		t.Fatalf("expected invalid id error")
	}
}
