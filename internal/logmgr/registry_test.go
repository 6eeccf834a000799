package logmgr

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	cfgpkg "github.com/microsoft/service-fabric-sub058/internal/config"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	"github.com/microsoft/service-fabric-sub058/internal/container/local"
	pebblestore "github.com/microsoft/service-fabric-sub058/internal/storage/pebble"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.PreferDriver = false
	cfg.Fsync = "never"
	cfg.Container.MaxBlockSize = 64 << 10
	cfg.Container.Capacity = 64 << 20
	cfg.Log.MaxBlockSize = 16 << 10
	return cfg
}

// countingManager counts closes of the connection and of containers.
type countingManager struct {
	container.Manager
	connCloses      atomic.Int32
	containerCloses atomic.Int32
	// afterCreate, when set, runs once a container has been created.
	afterCreate func()
}

func (m *countingManager) CreateContainer(ctx context.Context, opts container.CreateOptions) (container.Container, error) {
	c, err := m.Manager.CreateContainer(ctx, opts)
	if err != nil {
		return nil, err
	}
	if m.afterCreate != nil {
		m.afterCreate()
	}
	return &countingContainer{Container: c, m: m}, nil
}

func (m *countingManager) OpenContainer(ctx context.Context, path string, id uuid.UUID) (container.Container, error) {
	c, err := m.Manager.OpenContainer(ctx, path, id)
	if err != nil {
		return nil, err
	}
	return &countingContainer{Container: c, m: m}, nil
}

func (m *countingManager) Close() error {
	m.connCloses.Add(1)
	return m.Manager.Close()
}

type countingContainer struct {
	container.Container
	m *countingManager
}

func (c *countingContainer) Close(ctx context.Context) error {
	c.m.containerCloses.Add(1)
	return c.Container.Close(ctx)
}

func newCountingRegistry(t *testing.T) (*Registry, *countingManager, *int32) {
	t.Helper()
	cm := &countingManager{}
	var connects int32
	r := New(Options{
		Config: testConfig(t),
		Connect: func(ctx context.Context) (container.Manager, error) {
			m, err := local.NewManager(local.Options{Fsync: pebblestore.FsyncModeNever})
			if err != nil {
				return nil, err
			}
			atomic.AddInt32(&connects, 1)
			cm.Manager = m
			return cm, nil
		},
	})
	return r, cm, &connects
}

func TestRegistryConnectsLazilyAndDisconnects(t *testing.T) {
	ctx := context.Background()
	r, cm, connects := newCountingRegistry(t)
	require.False(t, r.Connected())

	h1, err := r.Open(ctx)
	require.NoError(t, err)
	h2, err := r.Open(ctx)
	require.NoError(t, err)
	require.True(t, r.Connected())
	require.Equal(t, int32(1), atomic.LoadInt32(connects))

	require.NoError(t, h1.Close(ctx))
	require.True(t, r.Connected())
	require.ErrorIs(t, h1.Close(ctx), ErrClosed)
	require.NoError(t, h2.Close(ctx))
	require.False(t, r.Connected())
	require.Equal(t, int32(1), cm.connCloses.Load())
	require.Empty(t, r.LeakCheck())

	h3, err := r.Open(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(connects))
	require.NoError(t, h3.Close(ctx))
}

func TestContainerClosedOnceAfterBothHandles(t *testing.T) {
	ctx := context.Background()
	r, cm, _ := newCountingRegistry(t)
	mh, err := r.Open(ctx)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "c1")
	a, err := mh.CreatePhysicalLog(ctx, path, uuid.Nil, ContainerOptions{})
	require.NoError(t, err)
	b, err := mh.OpenPhysicalLog(ctx, path, a.ContainerID())
	require.NoError(t, err)
	require.Equal(t, a.ContainerID(), b.ContainerID())

	require.NoError(t, a.Close(ctx))
	require.Equal(t, int32(0), cm.containerCloses.Load())
	require.True(t, b.IsFunctional())

	require.NoError(t, b.Close(ctx))
	require.Equal(t, int32(1), cm.containerCloses.Load())
	require.ErrorIs(t, b.Close(ctx), ErrClosed)
	require.Equal(t, int32(1), cm.containerCloses.Load())

	// The manager handle still holds the connection.
	require.True(t, r.Connected())
	require.NoError(t, mh.Close(ctx))
	require.False(t, r.Connected())
}

func TestCancelledCreateClosesContainer(t *testing.T) {
	r, cm, _ := newCountingRegistry(t)
	mh, err := r.Open(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cm.afterCreate = cancel
	_, err = mh.CreatePhysicalLog(ctx, filepath.Join(t.TempDir(), "c1"), uuid.Nil, ContainerOptions{})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(1), cm.containerCloses.Load())
	for _, leak := range r.LeakCheck() {
		require.NotContains(t, leak, "physical log")
	}

	require.NoError(t, mh.Close(context.Background()))
	require.Empty(t, r.LeakCheck())
	require.False(t, r.Connected())
}

func TestLogicalLogKeepsContainerAndConnectionOpen(t *testing.T) {
	ctx := context.Background()
	r, cm, _ := newCountingRegistry(t)
	mh, err := r.Open(ctx)
	require.NoError(t, err)
	ph, err := mh.CreatePhysicalLog(ctx, filepath.Join(t.TempDir(), "c"), uuid.Nil, ContainerOptions{})
	require.NoError(t, err)
	l, err := ph.CreateLogicalLog(ctx, uuid.Nil, "", LogOptions{})
	require.NoError(t, err)

	require.NoError(t, ph.Close(ctx))
	require.NoError(t, mh.Close(ctx))
	require.True(t, r.Connected())
	require.Equal(t, int32(0), cm.containerCloses.Load())
	require.NotEmpty(t, r.LeakCheck())

	require.NoError(t, l.Append(ctx, []byte("still writable")))
	require.NoError(t, l.Close(ctx))
	require.Equal(t, int32(1), cm.containerCloses.Load())
	require.Equal(t, int32(1), cm.connCloses.Load())
	require.False(t, r.Connected())
	require.Empty(t, r.LeakCheck())
}

func TestDriverFallbackToLocal(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.PreferDriver = true
	cfg.DriverSocket = filepath.Join(t.TempDir(), "missing.sock")
	r := New(Options{Config: cfg})
	mh, err := r.Open(ctx)
	require.NoError(t, err)
	require.Equal(t, "local", mh.Implementation())
	require.NoError(t, mh.Close(ctx))
}

func TestDeletedPhysicalLogTearsDownQuietly(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newCountingRegistry(t)
	mh, err := r.Open(ctx)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "c")
	ph, err := mh.CreatePhysicalLog(ctx, path, uuid.Nil, ContainerOptions{})
	require.NoError(t, err)
	l, err := ph.CreateLogicalLog(ctx, uuid.Nil, "", LogOptions{})
	require.NoError(t, err)

	require.NoError(t, mh.DeletePhysicalLog(ctx, path, ph.ContainerID()))
	require.False(t, ph.IsFunctional())
	require.False(t, l.IsFunctional())

	require.NoError(t, l.Append(ctx, []byte("x")))
	err = l.Close(ctx)
	require.ErrorIs(t, err, container.ErrGone)
	require.NoError(t, ph.Close(ctx))
	require.NoError(t, mh.Close(ctx))
	require.Empty(t, r.LeakCheck())
}

func TestExclusiveLogicalLogOpen(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newCountingRegistry(t)
	mh, err := r.Open(ctx)
	require.NoError(t, err)
	defer mh.Close(ctx)
	path := filepath.Join(t.TempDir(), "c")
	a, err := mh.CreatePhysicalLog(ctx, path, uuid.Nil, ContainerOptions{})
	require.NoError(t, err)
	defer a.Close(ctx)
	b, err := mh.OpenPhysicalLog(ctx, path, a.ContainerID())
	require.NoError(t, err)
	defer b.Close(ctx)

	id := uuid.New()
	l, err := a.CreateLogicalLog(ctx, id, "", LogOptions{})
	require.NoError(t, err)

	_, err = a.CreateLogicalLog(ctx, id, "", LogOptions{})
	require.ErrorIs(t, err, ErrAccessDenied)
	_, err = b.OpenLogicalLog(ctx, id, LogOptions{})
	require.ErrorIs(t, err, ErrAccessDenied)
	require.ErrorIs(t, b.DeleteLogicalLog(ctx, id), ErrAccessDenied)

	require.NoError(t, l.Close(ctx))
	l, err = b.OpenLogicalLog(ctx, id, LogOptions{})
	require.NoError(t, err)
	require.Equal(t, b.ID(), l.OwnerID())
	require.NoError(t, l.Close(ctx))
	require.NoError(t, b.DeleteLogicalLog(ctx, id))
	_, err = b.OpenLogicalLog(ctx, id, LogOptions{})
	require.ErrorIs(t, err, container.ErrNotFound)
}

func TestFailedCreateRollsBack(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newCountingRegistry(t)
	mh, err := r.Open(ctx)
	require.NoError(t, err)
	defer mh.Close(ctx)
	ph, err := mh.CreatePhysicalLog(ctx, filepath.Join(t.TempDir(), "c"), uuid.Nil, ContainerOptions{})
	require.NoError(t, err)
	defer ph.Close(ctx)

	id := uuid.New()
	// Not a multiple of the page size, so the write buffer cannot be built.
	_, err = ph.CreateLogicalLog(ctx, id, "broken", LogOptions{MaxBlockSize: 5000})
	require.ErrorIs(t, err, container.ErrInvalid)

	_, err = ph.ResolveAlias(ctx, "broken")
	require.ErrorIs(t, err, container.ErrNotFound)
	_, err = ph.OpenLogicalLog(ctx, id, LogOptions{})
	require.ErrorIs(t, err, container.ErrNotFound)

	st, err := ph.Stat(ctx)
	require.NoError(t, err)
	require.Zero(t, st.Streams)
}

func TestAliasReplaceAndCrashRecovery(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newCountingRegistry(t)
	mh, err := r.Open(ctx)
	require.NoError(t, err)
	defer mh.Close(ctx)
	ph, err := mh.CreatePhysicalLog(ctx, filepath.Join(t.TempDir(), "c"), uuid.Nil, ContainerOptions{})
	require.NoError(t, err)
	defer ph.Close(ctx)

	v1, v2 := uuid.New(), uuid.New()
	for id, alias := range map[uuid.UUID]string{v1: "Current", v2: "V2"} {
		l, err := ph.CreateLogicalLog(ctx, id, alias, LogOptions{})
		require.NoError(t, err)
		require.NoError(t, l.Close(ctx))
	}

	t.Run("crash after backup", func(t *testing.T) {
		require.NoError(t, ph.lock(ctx))
		require.NoError(t, ph.backupAlias(ctx, "Current", "V1"))
		ph.p.lock.Unlock()

		_, err := ph.ResolveAlias(ctx, "Current")
		require.ErrorIs(t, err, container.ErrNotFound)

		got, err := ph.RecoverAlias(ctx, "V2", "Current", "V1")
		require.NoError(t, err)
		require.Equal(t, v1, got)
		cur, err := ph.ResolveAlias(ctx, "Current")
		require.NoError(t, err)
		require.Equal(t, v1, cur)

		// Nothing to repair the second time.
		got, err = ph.RecoverAlias(ctx, "V2", "Current", "V1")
		require.NoError(t, err)
		require.Equal(t, v1, got)
	})

	t.Run("replace", func(t *testing.T) {
		require.NoError(t, ph.ReplaceAlias(ctx, "V2", "Current", "V1"))
		cur, err := ph.ResolveAlias(ctx, "Current")
		require.NoError(t, err)
		require.Equal(t, v2, cur)
		bak, err := ph.ResolveAlias(ctx, "V1")
		require.NoError(t, err)
		require.Equal(t, v1, bak)
		_, err = ph.ResolveAlias(ctx, "V2")
		require.ErrorIs(t, err, container.ErrNotFound)

		l, err := ph.OpenLogicalLogByAlias(ctx, "Current", LogOptions{})
		require.NoError(t, err)
		require.Equal(t, v2, l.ID())
		require.NoError(t, l.Close(ctx))
	})
}
