package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/logmux" {
		t.Errorf("Expected /custom/data/logmux, got %s", got)
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	if got := DefaultDataDir(); got != "./data" {
		t.Errorf("Expected fallback to './data', got %s", got)
	}
}

func TestDefaultDataDirShape(t *testing.T) {
	result := DefaultDataDir()
	if result == "" {
		t.Fatal("DefaultDataDir should not return empty string")
	}
	if !filepath.IsAbs(result) && !strings.HasPrefix(result, "./") {
		t.Errorf("DefaultDataDir should return absolute path or start with ./, got %s", result)
	}
	if result != "./data" && !strings.Contains(strings.ToLower(result), "logmux") {
		t.Errorf("DefaultDataDir should mention logmux, got %s", result)
	}
}

func TestContainerPath(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/logmux"
	if got := cfg.ContainerPath("c1"); got != "/var/lib/logmux/containers/c1" {
		t.Fatalf("got %s", got)
	}
}

func TestIsDir(t *testing.T) {
	if !isDir(".") {
		t.Errorf("isDir(.) should be true")
	}
	if isDir("/non/existent/path/that/does/not/exist") {
		t.Errorf("missing path should not be a dir")
	}
}
