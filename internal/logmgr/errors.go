package logmgr

import "errors"

var (
	// ErrClosed is returned by operations on a closed handle, log or stream.
	ErrClosed = errors.New("logmgr: closed")
	// ErrAccessDenied is returned when a logical log is already open.
	ErrAccessDenied = errors.New("logmgr: logical log already open")
	// ErrOutOfRange reports a truncation or seek offset outside the log.
	ErrOutOfRange = errors.New("logmgr: offset out of range")
	// ErrTruncated reports a read below the head truncation point.
	ErrTruncated = errors.New("logmgr: offset truncated")
	// ErrReadInvalidated is returned by a read that raced a tail truncation.
	ErrReadInvalidated = errors.New("logmgr: read invalidated by tail truncation")
)
