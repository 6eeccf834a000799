// Package id issues the 128-bit identifiers given to open handles.
//
// # Format
//
// An ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence].
// Byte-wise comparison therefore follows issue order, which keeps handle
// listings and log lines sorted by when the handle was opened.
//
// # Monotonicity
//
// A Generator never goes backwards within a process. If the wall clock
// regresses it keeps the last seen millisecond and bumps the sequence.
//
// Usage
//
//	g := id.NewGenerator()
//	h := g.Next()
//	_ = h.String() // 32 hex chars
//	_ = h.Short()  // last 8 hex chars, for log lines
package id
