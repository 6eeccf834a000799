package logmgr

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/microsoft/service-fabric-sub058/internal/container"
	"github.com/microsoft/service-fabric-sub058/internal/record"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
)

// ReadStream is a read cursor over a logical log with a private read
// buffer. Read-ahead tasks are shared by every cursor of the log.
type ReadStream struct {
	l *LogicalLog

	mu     sync.Mutex
	pos    int64
	buf    *record.ReadBuffer
	gen    uint64
	closed bool

	// rewind is the lowest tail truncation point since the cursor last
	// synced, or -1. Guarded by l.mu.
	rewind int64
}

func newReadStream(l *LogicalLog, off int64) *ReadStream {
	return &ReadStream{l: l, pos: off, rewind: -1}
}

// noteTailTruncation records that the tail moved back to off. Callers hold
// l.mu.
func (s *ReadStream) noteTailTruncation(off int64) {
	if s.rewind < 0 || off < s.rewind {
		s.rewind = off
	}
}

// readTask is a background block read started ahead of the reader.
type readTask struct {
	off    int64
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	buf    *record.ReadBuffer
	err    error
}

// sync brings the cursor up to date with tail truncations: a position past
// a truncation point moves back to it and the buffered block is dropped.
// Callers hold s.mu.
func (s *ReadStream) sync() (tail, head int64, gen uint64) {
	l := s.l
	l.mu.Lock()
	tail, head, gen = l.tail, l.head, l.gen
	rewind := s.rewind
	s.rewind = -1
	l.mu.Unlock()
	if rewind >= 0 && s.pos > rewind {
		s.pos = rewind
	}
	if s.gen != gen {
		s.buf = nil
		s.gen = gen
	}
	return tail, head, gen
}

func (l *LogicalLog) generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}

// unflushed reports whether [off, off+n) still lives in the write buffer,
// either open or sealed and being written.
func (l *LogicalLog) unflushed(off, n int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wbuf.Intersects(off, n) || off+n > l.flushed
}

// fetch reads the record holding off, or a run of records when a
// multi-record budget is set, and positions the result at off.
func (l *LogicalLog) fetch(ctx context.Context, off int64) (*record.ReadBuffer, error) {
	var blocks []container.Block
	if l.opts.MultiRecordReadBudget > 0 {
		bs, err := l.stream.ReadMulti(ctx, off, l.opts.MultiRecordReadBudget)
		if err != nil {
			return nil, err
		}
		blocks = bs
	} else {
		b, err := l.stream.ReadContaining(ctx, off)
		if err != nil {
			return nil, err
		}
		blocks = []container.Block{b}
	}
	carriers := make([]record.Carrier, len(blocks))
	for i, b := range blocks {
		carriers[i] = record.Carrier{Metadata: b.Metadata, Payload: b.Payload, Limit: b.Limit}
	}
	return record.OpenForRead(record.ReadSpec{
		Reserve:  container.ReservedMetadataSize,
		LogID:    l.id,
		Position: off,
	}, carriers...)
}

// startReadAhead launches a background read at off unless one is pending.
func (l *LogicalLog) startReadAhead(off int64, gen uint64) {
	l.raMu.Lock()
	defer l.raMu.Unlock()
	if l.raClosed {
		return
	}
	if _, ok := l.tasks[off]; ok {
		return
	}
	ctx, cancel := context.WithCancel(l.baseCtx)
	t := &readTask{off: off, gen: gen, cancel: cancel, done: make(chan struct{})}
	l.tasks[off] = t
	l.raGroup.Go(func() error {
		defer close(t.done)
		t.buf, t.err = l.fetch(ctx, off)
		return nil
	})
}

// takeReadAhead claims the background read for off. It returns nil when
// there is none or when its result is unusable; the caller then reads
// synchronously.
func (l *LogicalLog) takeReadAhead(ctx context.Context, off int64, gen uint64) *record.ReadBuffer {
	l.raMu.Lock()
	t, ok := l.tasks[off]
	if ok {
		delete(l.tasks, off)
	}
	l.raMu.Unlock()
	if !ok {
		l.m.BlockReads.WithLabelValues("readahead_miss").Inc()
		return nil
	}
	select {
	case <-t.done:
	case <-ctx.Done():
		t.cancel()
		<-t.done
		return nil
	}
	t.cancel()
	if t.err != nil || t.gen != gen || !t.buf.Seek(off) {
		l.m.ReadAheadDiscards.Inc()
		if t.err != nil {
			l.log.Debug("read-ahead discarded", logpkg.Int64("offset", off), logpkg.Err(t.err))
		}
		return nil
	}
	l.m.BlockReads.WithLabelValues("readahead_hit").Inc()
	return t.buf
}

// cancelReadAhead abandons every pending background read.
func (l *LogicalLog) cancelReadAhead() {
	l.raMu.Lock()
	defer l.raMu.Unlock()
	for off, t := range l.tasks {
		t.cancel()
		delete(l.tasks, off)
		l.m.ReadAheadDiscards.Inc()
	}
}

// drainReadAhead stops new background reads and waits for running ones.
func (l *LogicalLog) drainReadAhead() {
	l.raMu.Lock()
	l.raClosed = true
	l.raMu.Unlock()
	l.cancelReadAhead()
	_ = l.raGroup.Wait()
}

// Position is the offset the next Read starts at.
func (s *ReadStream) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sync()
	return s.pos
}

// Read copies bytes from the cursor into p. It returns io.EOF at the tail
// and ErrTruncated below the head truncation point. Bytes still in the
// write buffer are flushed first.
func (s *ReadStream) Read(ctx context.Context, p []byte) (int, error) {
	l := s.l
	if !l.ops.begin() {
		return 0, ErrClosed
	}
	defer l.ops.end()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	tail, head, gen := s.sync()
	if head >= 0 && s.pos < head {
		return 0, fmt.Errorf("%w: read at %d, head truncated at %d", ErrTruncated, s.pos, head)
	}
	if s.pos >= tail {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	todo := int(min(tail-s.pos, int64(len(p))))
	if l.unflushed(s.pos, int64(todo)) {
		if err := l.flush(ctx, false); err != nil {
			return 0, err
		}
	}

	start := s.pos
	// invalidated undoes the read if a tail truncation landed during it.
	// Errors seen while racing one are reported as the invalidation.
	invalidated := func() bool {
		if l.generation() == gen {
			return false
		}
		s.pos = start
		s.buf = nil
		return true
	}
	n, zeros := 0, 0
	for n < todo {
		if s.buf == nil || !s.buf.Seek(s.pos) {
			buf, err := s.load(ctx, gen)
			if err != nil {
				if invalidated() {
					return 0, ErrReadInvalidated
				}
				return n, err
			}
			s.buf = buf
		}
		c := s.buf.Get(p[n:todo])
		if c == 0 {
			zeros++
			s.buf = nil
			l.m.ZeroReadRetries.Inc()
			if zeros > l.opts.ZeroReadRetries {
				if invalidated() {
					return 0, ErrReadInvalidated
				}
				return n, fmt.Errorf("%w: no bytes at %d after %d retries", record.ErrOutOfSpan, s.pos, l.opts.ZeroReadRetries)
			}
			continue
		}
		zeros = 0
		n += c
		s.pos += int64(c)
	}
	if invalidated() {
		return 0, ErrReadInvalidated
	}
	l.m.BytesRead.Add(float64(n))
	if *l.opts.ReadAhead && s.buf.End() < tail {
		l.startReadAhead(s.buf.End(), gen)
	}
	return n, nil
}

func (s *ReadStream) load(ctx context.Context, gen uint64) (*record.ReadBuffer, error) {
	l := s.l
	if *l.opts.ReadAhead {
		if buf := l.takeReadAhead(ctx, s.pos, gen); buf != nil {
			return buf, nil
		}
	}
	buf, err := l.fetch(ctx, s.pos)
	if err != nil {
		return nil, err
	}
	l.m.BlockReads.WithLabelValues("sync").Inc()
	return buf, nil
}

// SeekTo moves the cursor to off, which may be anywhere up to the tail.
func (s *ReadStream) SeekTo(off int64) error {
	l := s.l
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.sync()
	if tail := l.WritePosition(); off < 0 || off > tail {
		return fmt.Errorf("%w: seek to %d, tail %d", ErrOutOfRange, off, tail)
	}
	s.pos = off
	if s.buf != nil && s.buf.Seek(off) {
		return nil
	}
	s.buf = nil
	if l.unflushed(off, 1) {
		return nil
	}
	l.cancelReadAhead()
	return nil
}

// Close releases the stream. The last user of a closed log closes its
// container stream.
func (s *ReadStream) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s == s.l.primary {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.buf = nil
	s.mu.Unlock()
	return s.l.unregister(ctx, s)
}

// Reader adapts the stream to io.ReadSeeker. ctx bounds every call.
func (s *ReadStream) Reader(ctx context.Context) io.ReadSeeker {
	return &streamReader{ctx: ctx, s: s}
}

// Reader adapts the log's primary cursor to io.ReadSeeker.
func (l *LogicalLog) Reader(ctx context.Context) io.ReadSeeker {
	return &streamReader{ctx: ctx, s: l.primary}
}

type streamReader struct {
	ctx context.Context
	s   *ReadStream
}

func (r *streamReader) Read(p []byte) (int, error) { return r.s.Read(r.ctx, p) }

func (r *streamReader) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = r.s.Position()
	case io.SeekEnd:
		base = r.s.l.WritePosition()
	default:
		return 0, fmt.Errorf("logmgr: invalid whence %d", whence)
	}
	if err := r.s.SeekTo(base + offset); err != nil {
		return 0, err
	}
	return base + offset, nil
}
