package local

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
)

type indexEntry struct {
	asn     int64
	version uint64
	size    int64
}

type cachedBlock struct {
	version  uint64
	metadata []byte
	payload  []byte
}

// streamState is shared by every handle on one stream.
type streamState struct {
	c    *Container
	id   uuid.UUID
	gone atomic.Bool
	refs int // guarded by c.mu

	mu    sync.RWMutex
	index []indexEntry
	head  int64
}

func encodeHead(head int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(head))
	return b[:]
}

func decodeHead(b []byte) int64 {
	if len(b) < 8 {
		return -1
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (s *streamState) ref() *streamRef {
	s.refs++
	return &streamRef{streamState: s}
}

func (s *streamState) loadIndex() error {
	return s.c.db.Scan(keyBlock(s.id, 0), keyBlockUpper(s.id), func(k, v []byte) (bool, error) {
		_, asn, ok := parseBlockKey(k)
		if !ok || len(v) < envelopeHeader {
			return false, fmt.Errorf("local: bad record key %x", k)
		}
		s.index = append(s.index, indexEntry{
			asn:     asn,
			version: binary.BigEndian.Uint64(v),
			size:    int64(len(v) - envelopeHeader),
		})
		return true, nil
	})
}

func (s *streamState) check() error {
	if err := s.c.check(); err != nil {
		return err
	}
	if s.gone.Load() {
		return container.ErrGone
	}
	return nil
}

// floor returns the index of the record with the greatest ASN <= asn, or -1.
func (s *streamState) floor(asn int64) int {
	return sort.Search(len(s.index), func(i int) bool { return s.index[i].asn > asn }) - 1
}

func (s *streamState) limitAfter(i int) int64 {
	if i+1 < len(s.index) {
		return s.index[i+1].asn
	}
	return -1
}

func (s *streamState) cacheKey(e indexEntry) string {
	k := make([]byte, 0, 32)
	k = append(k, s.id[:]...)
	k = appendBE8(k, uint64(e.asn))
	k = appendBE8(k, e.version)
	return string(k)
}

// fetch loads a record. Returned slices are shared with the cache and must
// not be modified.
func (s *streamState) fetch(i int) (container.Block, error) {
	e := s.index[i]
	m := s.c.mgr
	key := s.cacheKey(e)
	if m.cache != nil {
		if cb, ok := m.cache.Get(key); ok {
			m.m.BlockCacheHits.Inc()
			return container.Block{Version: cb.version, Asn: e.asn, Metadata: cb.metadata, Payload: cb.payload, Limit: s.limitAfter(i)}, nil
		}
		m.m.BlockCacheMisses.Inc()
	}
	raw, err := s.c.db.Get(keyBlock(s.id, e.asn))
	if err != nil {
		return container.Block{}, fmt.Errorf("read record %d: %w", e.asn, err)
	}
	version, metadata, payload, err := decodeEnvelope(raw)
	if err != nil {
		return container.Block{}, err
	}
	if m.cache != nil {
		m.cache.Set(key, &cachedBlock{version: version, metadata: metadata, payload: payload}, int64(len(raw)))
	}
	return container.Block{Version: version, Asn: e.asn, Metadata: metadata, Payload: payload, Limit: s.limitAfter(i)}, nil
}

// streamRef is one handle on a shared stream.
type streamRef struct {
	*streamState
	closed atomic.Bool
}

var _ container.Stream = (*streamRef)(nil)

// ID returns the stream identifier.
func (r *streamRef) ID() uuid.UUID { return r.id }

// IsFunctional reports whether the stream accepts operations.
func (r *streamRef) IsFunctional() bool {
	return !r.closed.Load() && r.check() == nil
}

func (r *streamRef) usable() error {
	if r.closed.Load() {
		return container.ErrClosed
	}
	return r.check()
}

// Write stores rec, discarding every record at or after rec.Asn.
func (r *streamRef) Write(ctx context.Context, rec container.Record) error {
	if err := r.usable(); err != nil {
		return err
	}
	size := int64(len(rec.Metadata) + len(rec.Payload))
	if rec.Asn < 0 || len(rec.Metadata) < container.ReservedMetadataSize {
		return fmt.Errorf("%w: record at %d with %d metadata bytes", container.ErrInvalid, rec.Asn, len(rec.Metadata))
	}
	if size > int64(r.c.meta.MaxBlockSize) {
		return fmt.Errorf("%w: record of %d bytes exceeds block size %d", container.ErrInvalid, size, r.c.meta.MaxBlockSize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := sort.Search(len(r.index), func(i int) bool { return r.index[i].asn >= rec.Asn })
	var freed int64
	for _, e := range r.index[i:] {
		freed += e.size
	}
	if err := r.c.reserve(size - freed); err != nil {
		return err
	}

	metadata := append([]byte(nil), rec.Metadata...)
	stampReserve(metadata, rec.Asn, rec.Version)

	b := r.c.db.NewBatch()
	defer b.Close()
	if i < len(r.index) {
		if err := b.DeleteRange(keyBlock(r.id, rec.Asn), keyBlockUpper(r.id), nil); err != nil {
			return err
		}
	}
	if err := b.Set(keyBlock(r.id, rec.Asn), encodeEnvelope(rec.Version, metadata, rec.Payload), nil); err != nil {
		return err
	}
	if err := r.c.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	if dropped := len(r.index) - i; dropped > 0 {
		r.c.log.Debug("records overwritten", logpkg.Str("stream", r.id.String()), logpkg.Int64("asn", rec.Asn), logpkg.Int("dropped", dropped))
	}
	r.index = append(r.index[:i], indexEntry{asn: rec.Asn, version: rec.Version, size: size})
	r.c.adjustUsage(size - freed)
	return nil
}

// ReadContaining returns the record with the greatest ASN <= asn.
func (r *streamRef) ReadContaining(ctx context.Context, asn int64) (container.Block, error) {
	if err := r.usable(); err != nil {
		return container.Block{}, err
	}
	if err := ctx.Err(); err != nil {
		return container.Block{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.floor(asn)
	if i < 0 {
		return container.Block{}, fmt.Errorf("%w: no record at or before %d", container.ErrNotFound, asn)
	}
	return r.fetch(i)
}

// ReadMulti returns the record containing asn followed by as many records as
// fit in budget bytes. At least one record is returned.
func (r *streamRef) ReadMulti(ctx context.Context, asn int64, budget int) ([]container.Block, error) {
	if err := r.usable(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.floor(asn)
	if i < 0 {
		return nil, fmt.Errorf("%w: no record at or before %d", container.ErrNotFound, asn)
	}
	var out []container.Block
	total := 0
	for j := i; j < len(r.index); j++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(out) > 0 && total+int(r.index[j].size) > budget {
			break
		}
		blk, err := r.fetch(j)
		if err != nil {
			return nil, err
		}
		out = append(out, blk)
		total += blk.Size()
	}
	return out, nil
}

// Truncate drops records at or after tail (tail >= 0) and records that end
// at or before head (head >= 0). The head point is persisted.
func (r *streamRef) Truncate(ctx context.Context, head, tail int64) error {
	if err := r.usable(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	index := r.index
	var freed int64
	b := r.c.db.NewBatch()
	defer b.Close()

	if tail >= 0 {
		i := sort.Search(len(index), func(i int) bool { return index[i].asn >= tail })
		for _, e := range index[i:] {
			freed += e.size
		}
		if i < len(index) {
			if err := b.DeleteRange(keyBlock(r.id, tail), keyBlockUpper(r.id), nil); err != nil {
				return err
			}
		}
		index = index[:i]
	}
	newHead := r.head
	if head >= 0 {
		k := 0
		for k+1 < len(index) && index[k+1].asn <= head {
			freed += index[k].size
			k++
		}
		if k > 0 {
			if err := b.DeleteRange(keyBlock(r.id, 0), keyBlock(r.id, index[k].asn), nil); err != nil {
				return err
			}
			index = index[k:]
		}
		if head > newHead {
			newHead = head
			if err := b.Set(keyStreamMeta(r.id), encodeHead(newHead), nil); err != nil {
				return err
			}
		}
	}
	if b.Empty() {
		return nil
	}
	if err := r.c.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	r.index = index
	r.head = newHead
	if freed > 0 {
		r.c.adjustUsage(-freed)
	}
	return nil
}

// Control serves ControlQueryRecoveryInfo and ControlQueryVersion.
func (r *streamRef) Control(ctx context.Context, code container.ControlCode, _ []byte) ([]byte, error) {
	if err := r.usable(); err != nil {
		return nil, err
	}
	switch code {
	case container.ControlQueryRecoveryInfo:
		r.mu.RLock()
		defer r.mu.RUnlock()
		var last *container.Block
		if n := len(r.index); n > 0 {
			blk, err := r.fetch(n - 1)
			if err != nil {
				return nil, err
			}
			last = &blk
		}
		info, err := container.RecoveryInfoFor(last, r.head, r.c.meta.MaxBlockSize)
		if err != nil {
			return nil, err
		}
		return info.Encode(), nil
	case container.ControlQueryVersion:
		return container.VersionInfo{Driver: r.c.mgr.Name(), Version: Version}.Encode(), nil
	default:
		return nil, fmt.Errorf("%w: %s", container.ErrUnsupported, code)
	}
}

// WaitNotification blocks until the container reaches value percent used.
func (r *streamRef) WaitNotification(ctx context.Context, kind container.NotificationKind, value int64) error {
	if err := r.usable(); err != nil {
		return err
	}
	if kind != container.PercentUsed {
		return fmt.Errorf("%w: notification kind %d", container.ErrUnsupported, kind)
	}
	return r.c.waitUsage(ctx, value)
}

// Close releases the handle.
func (r *streamRef) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return container.ErrClosed
	}
	c := r.c
	c.mu.Lock()
	defer c.mu.Unlock()
	r.refs--
	if r.refs == 0 {
		if cur, ok := c.streams[r.id]; ok && cur == r.streamState {
			delete(c.streams, r.id)
		}
	}
	return nil
}
