package log

import (
	"fmt"
	stdlog "log"
	"strings"
)

// Config is the declarative logger configuration.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	// Output is "console" (default) or "null".
	Output string `json:"output" yaml:"output"`
	// Redact lists field keys whose values are replaced.
	Redact []string `json:"redact,omitempty" yaml:"redact,omitempty"`
	// SampleInitial/SampleThereafter enable per-message sampling when
	// SampleThereafter > 0.
	SampleInitial    int `json:"sampleInitial,omitempty" yaml:"sampleInitial,omitempty"`
	SampleThereafter int `json:"sampleThereafter,omitempty" yaml:"sampleThereafter,omitempty"`
}

// ParseLevel converts a level name to a Level. The empty string is info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := []LoggerOption{WithLevel(level)}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		opts = append(opts, WithFormatter(&TextFormatter{}))
	case "json":
		opts = append(opts, WithFormatter(&JSONFormatter{}))
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	switch strings.ToLower(cfg.Output) {
	case "", "console":
		opts = append(opts, WithOutput(NewConsoleOutput()))
	case "null":
		opts = append(opts, WithOutput(&NullOutput{}))
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}
	if len(cfg.Redact) > 0 {
		opts = append(opts, WithRedactions(cfg.Redact...))
	}
	if cfg.SampleThereafter > 0 {
		opts = append(opts, WithSampling(cfg.SampleInitial, cfg.SampleThereafter))
	}
	return NewLogger(opts...), nil
}

// RedirectStdLog sends the standard library logger's output to l at info level.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(&stdWriter{l: l})
}

// ToStdLogger returns a *log.Logger that writes into l.
func ToStdLogger(l Logger) *stdlog.Logger {
	return stdlog.New(&stdWriter{l: l}, "", 0)
}

type stdWriter struct{ l Logger }

func (w *stdWriter) Write(p []byte) (int, error) {
	w.l.Infof("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
