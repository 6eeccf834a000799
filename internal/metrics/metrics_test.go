package metrics

import (
	"testing"
	"time"

	pebblestore "github.com/microsoft/service-fabric-sub058/internal/storage/pebble"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var _ pebblestore.MetricsHook = StorageHook{}

func TestStorageHookRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	h := m.Storage()

	h.ObserveWrite(time.Millisecond, 100)
	h.ObserveRead(time.Millisecond, 40)
	h.ObserveBatchCommit(time.Millisecond, 3, 60)

	require.Equal(t, 100.0, testutil.ToFloat64(m.StorageBytes.WithLabelValues("write")))
	require.Equal(t, 40.0, testutil.ToFloat64(m.StorageBytes.WithLabelValues("read")))
	require.Equal(t, 60.0, testutil.ToFloat64(m.StorageBytes.WithLabelValues("commit")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.StorageOps))
	require.Equal(t, 3, testutil.CollectAndCount(m.StorageSeconds))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	a := Discard()
	b := Discard()
	a.RecordsWritten.Inc()
	require.Equal(t, 1.0, testutil.ToFloat64(a.RecordsWritten))
	require.Equal(t, 0.0, testutil.ToFloat64(b.RecordsWritten))
	require.Same(t, Default(), Default())
}
