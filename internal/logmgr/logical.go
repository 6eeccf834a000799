package logmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/microsoft/service-fabric-sub058/internal/asynclock"
	cfgpkg "github.com/microsoft/service-fabric-sub058/internal/config"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	"github.com/microsoft/service-fabric-sub058/internal/metrics"
	"github.com/microsoft/service-fabric-sub058/internal/record"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
	"golang.org/x/sync/errgroup"
)

// LogOptions tune one logical log. Zero fields take configured defaults.
type LogOptions struct {
	MaxBlockSize int
	// ReadAhead starts the next block read after each read.
	ReadAhead *bool
	// MultiRecordReadBudget, when positive, reads runs of records up to this
	// many bytes instead of one record at a time.
	MultiRecordReadBudget int
	ZeroReadRetries       int
}

func (o LogOptions) withDefaults(cfg cfgpkg.Config, containerMax int) LogOptions {
	if o.MaxBlockSize == 0 {
		o.MaxBlockSize = int(cfg.Log.MaxBlockSize)
		if o.MaxBlockSize > containerMax {
			o.MaxBlockSize = containerMax
		}
	}
	if o.ReadAhead == nil {
		ra := cfg.Log.ReadAhead
		o.ReadAhead = &ra
	}
	if o.MultiRecordReadBudget == 0 {
		o.MultiRecordReadBudget = int(cfg.Log.MultiRecordReadBudget)
	}
	if o.ZeroReadRetries == 0 {
		o.ZeroReadRetries = cfg.Log.ZeroReadRetries
	}
	return o
}

// LogicalLog is one append-only byte stream stored as records in a
// container stream. Writers append into a buffer that is sealed into a
// record on flush. The log also carries a primary read cursor; independent
// cursors come from CreateReadStream.
type LogicalLog struct {
	id     uuid.UUID
	owner  uuid.UUID
	p      *physicalLog
	stream container.Stream
	opts   LogOptions
	log    logpkg.Logger
	m      *metrics.Metrics

	baseCtx context.Context
	cancel  context.CancelFunc

	closed atomic.Bool
	ops    opTracker

	// writeLock serializes append, flush and tail truncation.
	writeLock *asynclock.Lock

	mu        sync.Mutex
	tail      int64
	flushed   int64
	nextOp    uint64
	head      int64
	wbuf      *record.WriteBuffer
	gen       uint64
	views     map[*ReadStream]struct{}
	destroyed bool

	primary *ReadStream

	raMu     sync.Mutex
	tasks    map[int64]*readTask
	raClosed bool
	raGroup  errgroup.Group
}

func newLogicalLog(p *physicalLog, owner uuid.UUID, s container.Stream, opts LogOptions) (*LogicalLog, error) {
	if err := record.ValidateGeometry(container.ReservedMetadataSize, opts.MaxBlockSize); err != nil {
		return nil, fmt.Errorf("%w: %v", container.ErrInvalid, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &LogicalLog{
		id:        s.ID(),
		owner:     owner,
		p:         p,
		stream:    s,
		opts:      opts,
		log:       p.log.WithComponent("logical_log").With(logpkg.Str("log", s.ID().String())),
		m:         p.reg.m,
		baseCtx:   ctx,
		cancel:    cancel,
		writeLock: asynclock.New("logical_log_write"),
		views:     make(map[*ReadStream]struct{}),
		tasks:     make(map[int64]*readTask),
	}
	l.primary = newReadStream(l, 0)
	return l, nil
}

// onCreated initializes an empty log.
func (l *LogicalLog) onCreated() error {
	l.tail, l.flushed, l.nextOp, l.head = 0, 0, 0, -1
	return l.resetWriteBufferLocked(0)
}

// onRecover rebuilds the cursors from the state recorded in the container.
// It does not write.
func (l *LogicalLog) onRecover(ctx context.Context) error {
	out, err := l.stream.Control(ctx, container.ControlQueryRecoveryInfo, nil)
	if err != nil {
		return fmt.Errorf("recover %s: %w", l.id, err)
	}
	info, err := container.DecodeRecoveryInfo(out)
	if err != nil {
		return err
	}
	if info.HighestOperationID == 0 {
		// Nothing was ever written, so there is nothing to truncate.
		l.tail, l.nextOp, l.head = 0, 0, -1
	} else {
		l.tail, l.nextOp = info.TailAsn, info.HighestOperationID
		l.head = max(info.HeadTruncationPoint, -1)
	}
	l.flushed = l.tail
	if info.MaxBlockSize > 0 && int64(l.opts.MaxBlockSize) > info.MaxBlockSize {
		l.opts.MaxBlockSize = int(info.MaxBlockSize)
	}
	return l.resetWriteBufferLocked(l.tail)
}

// resetWriteBufferLocked starts a fresh write buffer at off. Callers hold
// l.mu or own the log exclusively.
func (l *LogicalLog) resetWriteBufferLocked(off int64) error {
	wb, err := record.NewWriteBuffer(container.ReservedMetadataSize, l.opts.MaxBlockSize, off, l.nextOp+1, l.id)
	if err != nil {
		return err
	}
	l.wbuf = wb
	return nil
}

// ID returns the logical log identifier.
func (l *LogicalLog) ID() uuid.UUID { return l.id }

// PhysicalLogID returns the identifier of the owning container.
func (l *LogicalLog) PhysicalLogID() uuid.UUID { return l.p.id }

// OwnerID returns the physical log handle the log was opened through.
func (l *LogicalLog) OwnerID() uuid.UUID { return l.owner }

// MaximumBlockSize is the largest record the log writes.
func (l *LogicalLog) MaximumBlockSize() int { return l.opts.MaxBlockSize }

// WritePosition is the offset the next appended byte lands at.
func (l *LogicalLog) WritePosition() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tail
}

// Length is the number of bytes between the head truncation point and the
// tail.
func (l *LogicalLog) Length() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.head < 0 {
		return l.tail
	}
	return l.tail - l.head
}

// HeadTruncationPosition is the head truncation point, or -1.
func (l *LogicalLog) HeadTruncationPosition() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head
}

// IsFunctional reports whether the log and its container stream accept
// operations.
func (l *LogicalLog) IsFunctional() bool {
	return !l.closed.Load() && l.stream.IsFunctional()
}

func (l *LogicalLog) begin() error {
	if l.closed.Load() || !l.ops.begin() {
		return ErrClosed
	}
	return nil
}

// Append copies p into the write buffer, flushing whenever it fills.
func (l *LogicalLog) Append(ctx context.Context, p []byte) error {
	if err := l.begin(); err != nil {
		return err
	}
	defer l.ops.end()
	if err := l.writeLock.Lock(ctx); err != nil {
		return err
	}
	defer l.writeLock.Unlock()
	for len(p) > 0 {
		l.mu.Lock()
		n := l.wbuf.Put(p)
		l.tail += int64(n)
		l.mu.Unlock()
		l.m.BytesAppended.Add(float64(n))
		p = p[n:]
		if len(p) > 0 {
			if err := l.flushLocked(ctx, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush writes buffered bytes as a record.
func (l *LogicalLog) Flush(ctx context.Context) error { return l.flush(ctx, false) }

// FlushWithBarrier writes buffered bytes as a record marked as the end of a
// logical record.
func (l *LogicalLog) FlushWithBarrier(ctx context.Context) error { return l.flush(ctx, true) }

func (l *LogicalLog) flush(ctx context.Context, barrier bool) error {
	if err := l.begin(); err != nil {
		return err
	}
	defer l.ops.end()
	if err := l.lockWrite(ctx); err != nil {
		return err
	}
	defer l.writeLock.Unlock()
	return l.flushLocked(ctx, barrier)
}

// lockWrite takes the write lock, counting the times a flush had to wait.
func (l *LogicalLog) lockWrite(ctx context.Context) error {
	if l.writeLock.TryLock() {
		return nil
	}
	l.m.FlushWaits.Inc()
	l.log.Debug("flush waiting for write lock", logpkg.Int("waiters", l.writeLock.Waiters()))
	return l.writeLock.Lock(ctx)
}

// flushLocked seals and writes the buffer. An empty buffer is left alone.
// Callers hold the write lock.
func (l *LogicalLog) flushLocked(ctx context.Context, barrier bool) error {
	l.mu.Lock()
	wb := l.wbuf
	if wb.Len() == 0 {
		l.mu.Unlock()
		return nil
	}
	l.nextOp++
	sealed := wb.Seal(l.head, barrier)
	l.mu.Unlock()

	err := l.stream.Write(ctx, container.Record{
		Version:  sealed.OperationNumber,
		Asn:      sealed.StreamOffset,
		Metadata: sealed.Metadata,
		Payload:  sealed.Payload,
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.nextOp--
		if rerr := l.rebuildLocked(wb); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	l.flushed = sealed.StreamOffset + int64(sealed.DataSize)
	l.m.RecordsWritten.Inc()
	return l.resetWriteBufferLocked(l.tail)
}

// rebuildLocked replaces a sealed buffer whose write failed with an open one
// holding the same bytes, so the flush can be retried.
func (l *LogicalLog) rebuildLocked(old *record.WriteBuffer) error {
	if err := l.resetWriteBufferLocked(old.StreamOffset()); err != nil {
		return err
	}
	data := make([]byte, old.Len())
	old.ReadAt(data, old.StreamOffset())
	l.wbuf.Put(data)
	return nil
}

// TruncateHead discards everything before off. It returns without waiting
// for the container; Close waits for it. Offsets at or below the current
// truncation point are ignored.
func (l *LogicalLog) TruncateHead(off int64) error {
	if err := l.begin(); err != nil {
		return err
	}
	l.mu.Lock()
	if off <= l.head {
		l.mu.Unlock()
		l.ops.end()
		return nil
	}
	if off > l.tail {
		tail := l.tail
		l.mu.Unlock()
		l.ops.end()
		return fmt.Errorf("%w: head %d beyond tail %d", ErrOutOfRange, off, tail)
	}
	l.head = off
	l.mu.Unlock()

	go func() {
		defer l.ops.end()
		if err := l.stream.Truncate(context.Background(), off, -1); err != nil {
			l.log.Warn("head truncation failed", logpkg.Int64("offset", off), logpkg.Err(err))
			return
		}
		l.m.Truncations.WithLabelValues("head").Inc()
	}()
	return nil
}

// TruncateTail discards everything at or after off and moves the tail there.
// A zero-length barrier record marks the new tail in the container. Reads
// in flight and read-ahead started before the call are invalidated, and
// cursors positioned past off move back to it.
func (l *LogicalLog) TruncateTail(ctx context.Context, off int64) error {
	if err := l.begin(); err != nil {
		return err
	}
	defer l.ops.end()
	if err := l.writeLock.Lock(ctx); err != nil {
		return err
	}
	defer l.writeLock.Unlock()

	l.mu.Lock()
	tail, head := l.tail, l.head
	l.mu.Unlock()
	if off >= tail || off <= head || off < 0 {
		return fmt.Errorf("%w: tail truncation to %d, log spans (%d,%d)", ErrOutOfRange, off, head, tail)
	}
	if err := l.flushLocked(ctx, false); err != nil {
		return err
	}

	l.mu.Lock()
	l.nextOp++
	op, head := l.nextOp, l.head
	l.mu.Unlock()
	wb, err := record.NewWriteBuffer(container.ReservedMetadataSize, l.opts.MaxBlockSize, off, op, l.id)
	if err != nil {
		return err
	}
	sealed := wb.Seal(head, true)
	err = l.stream.Write(ctx, container.Record{
		Version:  sealed.OperationNumber,
		Asn:      sealed.StreamOffset,
		Metadata: sealed.Metadata,
		Payload:  sealed.Payload,
	})

	l.mu.Lock()
	if err != nil {
		l.nextOp--
		l.mu.Unlock()
		return err
	}
	l.tail, l.flushed = off, off
	l.gen++
	l.primary.noteTailTruncation(off)
	for v := range l.views {
		v.noteTailTruncation(off)
	}
	err = l.resetWriteBufferLocked(off)
	l.mu.Unlock()

	l.cancelReadAhead()
	l.m.Truncations.WithLabelValues("tail").Inc()
	l.log.Debug("tail truncated", logpkg.Int64("offset", off), logpkg.Int64("previous", tail))
	return err
}

// WaitCapacityNotification blocks until the container is percent full.
func (l *LogicalLog) WaitCapacityNotification(ctx context.Context, percent int64) error {
	if err := l.begin(); err != nil {
		return err
	}
	defer l.ops.end()
	return l.stream.WaitNotification(ctx, container.PercentUsed, percent)
}

// DriverVersion asks the container implementation for its version.
func (l *LogicalLog) DriverVersion(ctx context.Context) (container.VersionInfo, error) {
	if err := l.begin(); err != nil {
		return container.VersionInfo{}, err
	}
	defer l.ops.end()
	out, err := l.stream.Control(ctx, container.ControlQueryVersion, nil)
	if err != nil {
		return container.VersionInfo{}, err
	}
	return container.DecodeVersionInfo(out)
}

// Read reads from the primary cursor.
func (l *LogicalLog) Read(ctx context.Context, p []byte) (int, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	return l.primary.Read(ctx, p)
}

// SeekTo moves the primary cursor.
func (l *LogicalLog) SeekTo(off int64) error {
	if l.closed.Load() {
		return ErrClosed
	}
	return l.primary.SeekTo(off)
}

// ReadPosition is the offset of the primary cursor.
func (l *LogicalLog) ReadPosition() int64 { return l.primary.Position() }

// CreateReadStream returns an independent cursor starting at off. It keeps
// the log's container stream open until it is closed.
func (l *LogicalLog) CreateReadStream(off int64) (*ReadStream, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	rs := newReadStream(l, off)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return nil, ErrClosed
	}
	rs.gen = l.gen
	l.views[rs] = struct{}{}
	return rs, nil
}

// Close flushes buffered bytes and releases the log. The container stream
// stays open while read streams created from the log are open.
func (l *LogicalLog) Close(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	ferr := l.Flush(ctx)
	if !l.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	l.mu.Lock()
	last := len(l.views) == 0
	l.mu.Unlock()
	if !last {
		return ferr
	}
	return errors.Join(ferr, l.destroy(ctx))
}

// unregister drops a read stream and destroys the log if it was the last
// user.
func (l *LogicalLog) unregister(ctx context.Context, rs *ReadStream) error {
	l.mu.Lock()
	delete(l.views, rs)
	last := len(l.views) == 0 && l.closed.Load()
	l.mu.Unlock()
	if !last {
		return nil
	}
	return l.destroy(ctx)
}

// destroy drains background reads, then foreground operations, then closes
// the container stream and removes the log from its physical log.
func (l *LogicalLog) destroy(ctx context.Context) error {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return nil
	}
	l.destroyed = true
	l.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	l.cancel()
	l.drainReadAhead()
	if err := l.ops.drain(ctx); err != nil {
		return err
	}
	var errs []error
	if err := l.stream.Close(ctx); err != nil {
		if errors.Is(err, container.ErrGone) {
			l.log.Warn("stream already deleted")
		} else if !errors.Is(err, container.ErrClosed) {
			errs = append(errs, err)
		}
	}
	errs = append(errs, l.p.release(ctx, func() error {
		if cur, ok := l.p.logs[l.id]; ok && cur == l {
			delete(l.p.logs, l.id)
			l.m.LogsOpen.Dec()
		}
		return nil
	}))
	return errors.Join(errs...)
}
