// Package container defines the block container contract the logical-log
// engine is built on.
//
// A Manager creates, opens and deletes containers. A Container holds a set
// of block streams addressed by id or by alias. A Stream stores sealed
// records keyed by ASN (the stream offset of their first payload byte) and
// serves reads by offset. Two implementations exist: local (in-process,
// Pebble backed) and remote (a gRPC client for the container driver).
package container

import (
	"context"

	"github.com/google/uuid"
)

// ReservedMetadataSize is the prefix of every metadata carrier owned by the
// container. Record headers start right after it.
const ReservedMetadataSize = 64

// CreateOptions describe a new container.
type CreateOptions struct {
	Path         string
	ID           uuid.UUID
	Capacity     int64
	MaxStreams   int
	MaxBlockSize int
}

// Manager is the connection to a container implementation.
type Manager interface {
	CreateContainer(ctx context.Context, opts CreateOptions) (Container, error)
	OpenContainer(ctx context.Context, path string, id uuid.UUID) (Container, error)
	DeleteContainer(ctx context.Context, path string, id uuid.UUID) error
	// Name identifies the implementation ("local", "driver").
	Name() string
	Close() error
}

// Stats is a point-in-time view of a container.
type Stats struct {
	ID           uuid.UUID
	Path         string
	Capacity     int64
	Used         int64
	Streams      int
	MaxStreams   int
	MaxBlockSize int
}

// PercentUsed is Used as a percentage of Capacity.
func (s Stats) PercentUsed() int64 {
	if s.Capacity <= 0 {
		return 0
	}
	return s.Used * 100 / s.Capacity
}

// Container is one open block container.
type Container interface {
	ID() uuid.UUID
	CreateStream(ctx context.Context, id uuid.UUID, alias string) (Stream, error)
	OpenStream(ctx context.Context, id uuid.UUID) (Stream, error)
	DeleteStream(ctx context.Context, id uuid.UUID) error
	AssignAlias(ctx context.Context, alias string, id uuid.UUID) error
	ResolveAlias(ctx context.Context, alias string) (uuid.UUID, error)
	RemoveAlias(ctx context.Context, alias string) error
	Stat(ctx context.Context) (Stats, error)
	IsFunctional() bool
	Close(ctx context.Context) error
}

// Record is a sealed block handed to Stream.Write.
type Record struct {
	// Version is the operation number of the record.
	Version  uint64
	Asn      int64
	Metadata []byte
	Payload  []byte
}

// Block is a record as returned by a read.
type Block struct {
	Version  uint64
	Asn      int64
	Metadata []byte
	Payload  []byte
	// Limit is the ASN of the following record, or -1 if this is the last.
	Limit int64
}

// NotificationKind selects what WaitNotification waits for.
type NotificationKind uint32

const (
	// PercentUsed fires when container usage reaches the given percentage.
	PercentUsed NotificationKind = iota + 1
)

// Stream is one block stream inside a container.
//
// Write at ASN A discards every record at or after A before storing the new
// one. ReadContaining returns the record with the greatest ASN <= asn.
// ReadMulti returns that record and the records following it until their
// combined size passes budget. Truncate drops records that end at or before
// head (head < 0 skips) and records at or after tail (tail < 0 skips).
type Stream interface {
	ID() uuid.UUID
	Write(ctx context.Context, rec Record) error
	ReadContaining(ctx context.Context, asn int64) (Block, error)
	ReadMulti(ctx context.Context, asn int64, budget int) ([]Block, error)
	Truncate(ctx context.Context, head, tail int64) error
	Control(ctx context.Context, code ControlCode, in []byte) ([]byte, error)
	WaitNotification(ctx context.Context, kind NotificationKind, value int64) error
	IsFunctional() bool
	Close(ctx context.Context) error
}

// Size is the number of bytes a block occupies in a container.
func (b Block) Size() int { return len(b.Metadata) + len(b.Payload) }
