// Package pebblestore provides a thin wrapper around Pebble with fsync policy,
// batches, range scans and minimal metrics hooks. The in-process block
// container keeps one store per container path.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data/containers/c1",
//	    Fsync:   pebblestore.FsyncModeAlways,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
//
//	_ = db.Scan([]byte("s/"), []byte("s0"), func(k, v []byte) (bool, error) { return true, nil })
package pebblestore
