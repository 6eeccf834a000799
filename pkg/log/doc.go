// Package log provides the structured logging facade used across logmux.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Records are routed through log/slog via
// a bridge handler that feeds our formatter and output pipeline, so the
// engine, the container driver and the CLI all emit the same shape of line.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("logical_log"), log.Str("log_id", id.String()))
//	l.Info("flushed record", log.Uint64("op", op), log.Int64("asn", asn))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config (level, text or json
// format, console or null output, redacted keys and sampling).
//
// # Interop
//
// Libraries that log through the standard library (Pebble does) can be
// routed into a Logger with RedirectStdLog.
package log
