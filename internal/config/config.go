package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
	"gopkg.in/yaml.v3"
)

// Size is a byte count that also accepts human strings ("64KiB", "1 GB") in
// config files.
type Size int64

// ParseSize parses a plain integer or a humanized byte string.
func ParseSize(s string) (Size, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return Size(n), nil
}

// String renders the size in IEC units.
func (s Size) String() string { return humanize.IBytes(uint64(s)) }

// UnmarshalJSON accepts both numbers and strings.
func (s *Size) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*s = Size(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("size: %w", err)
	}
	v, err := ParseSize(str)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// UnmarshalYAML accepts both numbers and strings.
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*s = Size(n)
		return nil
	}
	v, err := ParseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// DataDir holds default container paths and the driver socket.
	DataDir string `json:"dataDir" yaml:"dataDir"`
	// DriverSocket is the unix socket of the container driver. When empty it
	// defaults to DataDir/driver.sock.
	DriverSocket string `json:"driverSocket" yaml:"driverSocket"`
	// PreferDriver makes the registry try the driver before falling back to
	// the in-process container.
	PreferDriver bool `json:"preferDriver" yaml:"preferDriver"`
	// Fsync is always|interval|never for the in-process container.
	Fsync string `json:"fsync" yaml:"fsync"`

	Container ContainerDefaults `json:"container" yaml:"container"`
	Log       LogDefaults       `json:"log" yaml:"log"`
	Logging   logpkg.Config     `json:"logging" yaml:"logging"`
}

// ContainerDefaults apply when a physical log is created without explicit
// limits.
type ContainerDefaults struct {
	Capacity     Size `json:"capacity" yaml:"capacity"`
	MaxStreams   int  `json:"maxStreams" yaml:"maxStreams"`
	MaxBlockSize Size `json:"maxBlockSize" yaml:"maxBlockSize"`
	// BlockCache is the byte budget of the in-process container's block
	// cache. Zero disables it.
	BlockCache Size `json:"blockCache" yaml:"blockCache"`
}

// LogDefaults tune each logical log.
type LogDefaults struct {
	MaxBlockSize Size `json:"maxBlockSize" yaml:"maxBlockSize"`
	ReadAhead    bool `json:"readAhead" yaml:"readAhead"`
	// MultiRecordReadBudget, when non-zero, makes reads fetch a run of
	// records up to this many bytes instead of a single record.
	MultiRecordReadBudget Size `json:"multiRecordReadBudget" yaml:"multiRecordReadBudget"`
	// ZeroReadRetries bounds consecutive zero-byte reads from a resident buffer.
	ZeroReadRetries int `json:"zeroReadRetries" yaml:"zeroReadRetries"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:      DefaultDataDir(),
		PreferDriver: true,
		Fsync:        "always",
		Container: ContainerDefaults{
			Capacity:     1 << 30,
			MaxStreams:   64,
			MaxBlockSize: 1 << 20,
			BlockCache:   32 << 20,
		},
		Log: LogDefaults{
			MaxBlockSize:    256 << 10,
			ReadAhead:       true,
			ZeroReadRetries: 2,
		},
		Logging: logpkg.Config{Level: "info", Format: "text"},
	}
}

// SocketPath returns the effective driver socket.
func (c Config) SocketPath() string {
	if c.DriverSocket != "" {
		return c.DriverSocket
	}
	return filepath.Join(c.DataDir, "driver.sock")
}

// Validate checks the limits the engine relies on.
func (c Config) Validate() error {
	if c.Log.MaxBlockSize <= 0 || c.Log.MaxBlockSize%4096 != 0 {
		return fmt.Errorf("log.maxBlockSize must be a positive multiple of 4096, got %d", c.Log.MaxBlockSize)
	}
	if c.Container.MaxBlockSize < c.Log.MaxBlockSize {
		return fmt.Errorf("container.maxBlockSize (%s) is smaller than log.maxBlockSize (%s)", c.Container.MaxBlockSize, c.Log.MaxBlockSize)
	}
	if c.Log.ZeroReadRetries < 0 {
		return fmt.Errorf("log.zeroReadRetries must not be negative")
	}
	switch c.Fsync {
	case "always", "interval", "never":
	default:
		return fmt.Errorf("fsync must be always|interval|never, got %q", c.Fsync)
	}
	return nil
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
