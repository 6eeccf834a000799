package config

import (
	"os"
	"strconv"
)

// FromEnv overlays LOGMUX_* environment variables onto cfg. Malformed values
// are ignored.
func FromEnv(cfg *Config) {
	if v := os.Getenv("LOGMUX_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOGMUX_DRIVER_SOCKET"); v != "" {
		cfg.DriverSocket = v
	}
	if v := os.Getenv("LOGMUX_PREFER_DRIVER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.PreferDriver = b
		}
	}
	if v := os.Getenv("LOGMUX_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("LOGMUX_CONTAINER_CAPACITY"); v != "" {
		if s, err := ParseSize(v); err == nil {
			cfg.Container.Capacity = s
		}
	}
	if v := os.Getenv("LOGMUX_CONTAINER_MAX_STREAMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Container.MaxStreams = n
		}
	}
	if v := os.Getenv("LOGMUX_CONTAINER_MAX_BLOCK_SIZE"); v != "" {
		if s, err := ParseSize(v); err == nil {
			cfg.Container.MaxBlockSize = s
		}
	}
	if v := os.Getenv("LOGMUX_CONTAINER_BLOCK_CACHE"); v != "" {
		if s, err := ParseSize(v); err == nil {
			cfg.Container.BlockCache = s
		}
	}
	if v := os.Getenv("LOGMUX_LOG_MAX_BLOCK_SIZE"); v != "" {
		if s, err := ParseSize(v); err == nil {
			cfg.Log.MaxBlockSize = s
		}
	}
	if v := os.Getenv("LOGMUX_LOG_READ_AHEAD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.ReadAhead = b
		}
	}
	if v := os.Getenv("LOGMUX_LOG_MULTI_RECORD_READ_BUDGET"); v != "" {
		if s, err := ParseSize(v); err == nil {
			cfg.Log.MultiRecordReadBudget = s
		}
	}
	if v := os.Getenv("LOGMUX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOGMUX_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
