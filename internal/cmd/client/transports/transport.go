package transports

import (
	"context"

	"github.com/google/uuid"
	"github.com/microsoft/service-fabric-sub058/internal/container"
)

// LogRef names a logical log inside a container, by alias or by id. Alias
// wins when both are set.
type LogRef struct {
	Container string
	Alias     string
	ID        uuid.UUID
}

// LogInfo is a snapshot of a logical log's cursors.
type LogInfo struct {
	ID           uuid.UUID
	Length       int64
	Head         int64
	MaxBlockSize int
	Driver       container.VersionInfo
}

// ContainerSpec sizes a new container. Zero fields take configured defaults.
type ContainerSpec struct {
	Path         string
	Capacity     int64
	MaxStreams   int
	MaxBlockSize int
}

// LogTransport abstracts how the CLI reaches logical logs.
type LogTransport interface {
	Implementation(ctx context.Context) (string, error)

	CreateContainer(ctx context.Context, spec ContainerSpec) (uuid.UUID, error)
	DeleteContainer(ctx context.Context, path string) error
	StatContainer(ctx context.Context, path string) (container.Stats, error)

	CreateLog(ctx context.Context, path, alias string) (uuid.UUID, error)
	DeleteLog(ctx context.Context, ref LogRef) error
	Info(ctx context.Context, ref LogRef) (LogInfo, error)
	Append(ctx context.Context, ref LogRef, data []byte, barrier bool) (LogInfo, error)
	Flush(ctx context.Context, ref LogRef) (LogInfo, error)
	// Read returns up to n bytes from off; n <= 0 reads to the end.
	Read(ctx context.Context, ref LogRef, off, n int64) ([]byte, error)
	TruncateHead(ctx context.Context, ref LogRef, off int64) error
	TruncateTail(ctx context.Context, ref LogRef, off int64) error

	AssignAlias(ctx context.Context, path, alias string, id uuid.UUID) error
	ResolveAlias(ctx context.Context, path, alias string) (uuid.UUID, error)
	RemoveAlias(ctx context.Context, path, alias string) error
	ReplaceAlias(ctx context.Context, path, source, target, backup string) error
	RecoverAlias(ctx context.Context, path, source, target, backup string) (uuid.UUID, error)
}
