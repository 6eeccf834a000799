package record

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// WriteBuffer accumulates payload for one record. The payload spans the tail
// of the metadata carrier and then a page-aligned carrier.
type WriteBuffer struct {
	reserve int
	meta    []byte
	page    []byte
	metaCap int
	size    int
	header  StreamBlockHeader
	sealed  bool
}

// NewWriteBuffer allocates a buffer for a record starting at streamOffset
// that will be written with operation number opNumber.
func NewWriteBuffer(reserve, maxBlockSize int, streamOffset int64, opNumber uint64, logID uuid.UUID) (*WriteBuffer, error) {
	if err := ValidateGeometry(reserve, maxBlockSize); err != nil {
		return nil, err
	}
	if streamOffset < 0 {
		return nil, fmt.Errorf("record: negative stream offset %d", streamOffset)
	}
	return &WriteBuffer{
		reserve: reserve,
		meta:    make([]byte, FixedMetadataSize),
		page:    make([]byte, maxBlockSize-FixedMetadataSize),
		metaCap: MetadataPayloadCapacity(reserve),
		header: StreamBlockHeader{
			Signature:           Signature,
			StreamOffsetPlusOne: uint64(streamOffset) + 1,
			HighestOperationID:  opNumber,
			StreamID:            logID,
			HeadTruncationPoint: -1,
		},
	}, nil
}

// StreamOffset is where the first byte of this buffer lands in the log.
func (w *WriteBuffer) StreamOffset() int64 { return w.header.StreamOffset() }

// OperationNumber is the operation number the record will carry.
func (w *WriteBuffer) OperationNumber() uint64 { return w.header.HighestOperationID }

// Len returns the number of payload bytes written so far.
func (w *WriteBuffer) Len() int { return w.size }

// Cap is the payload capacity of the record.
func (w *WriteBuffer) Cap() int { return w.metaCap + len(w.page) }

// Remaining is Cap() - Len().
func (w *WriteBuffer) Remaining() int { return w.Cap() - w.size }

// End is the stream offset one past the last buffered byte.
func (w *WriteBuffer) End() int64 { return w.StreamOffset() + int64(w.size) }

// Put copies as much of p as fits and returns the count copied.
func (w *WriteBuffer) Put(p []byte) int {
	if w.sealed {
		panic("record: put on sealed buffer")
	}
	n := 0
	if w.size < w.metaCap {
		start := payloadOffset(w.reserve) + w.size
		c := copy(w.meta[start:], p)
		n += c
		w.size += c
		p = p[c:]
	}
	if len(p) > 0 && w.size >= w.metaCap {
		c := copy(w.page[w.size-w.metaCap:], p)
		n += c
		w.size += c
	}
	return n
}

// ReadAt copies buffered bytes starting at the absolute stream offset off.
// It serves reads of data that has been appended but not yet flushed.
func (w *WriteBuffer) ReadAt(p []byte, off int64) int {
	if off < w.StreamOffset() || off >= w.End() {
		return 0
	}
	return copyPayload(p, w.meta[payloadOffset(w.reserve):], w.metaCap, w.page, int(off-w.StreamOffset()), w.size)
}

// Intersects reports whether [offset, offset+size) overlaps the buffered
// bytes. A sealed buffer never intersects.
func (w *WriteBuffer) Intersects(offset, size int64) bool {
	if w.sealed || w.size == 0 || size <= 0 {
		return false
	}
	return offset < w.End() && w.StreamOffset() < offset+size
}

// SealedRecord is what a sealed write buffer hands to the container.
type SealedRecord struct {
	Metadata        []byte
	Payload         []byte
	OperationNumber uint64
	StreamOffset    int64
	DataSize        int
	Barrier         bool
}

// Seal finalizes the record. Sealing twice panics.
func (w *WriteBuffer) Seal(headTruncationPoint int64, barrier bool) SealedRecord {
	if w.sealed {
		panic("record: buffer already sealed")
	}
	w.sealed = true

	var flags uint32
	if barrier {
		flags |= FlagEndOfLogicalRecord
	}
	le := binary.LittleEndian
	le.PutUint32(w.meta[w.reserve:], uint32(streamHeaderOffset(w.reserve)))
	le.PutUint32(w.meta[w.reserve+4:], flags)
	le.PutUint64(w.meta[w.reserve+8:], 0)

	inMeta := w.size
	if inMeta > w.metaCap {
		inMeta = w.metaCap
	}
	pageBytes := w.size - inMeta
	start := payloadOffset(w.reserve)

	h := &w.header
	h.DataSize = uint32(w.size)
	h.HeadTruncationPoint = headTruncationPoint
	h.DataCRC64 = dataChecksum(w.meta[start:start+inMeta], w.page[:pageBytes])
	h.HeaderCRC64 = 0
	enc := w.meta[streamHeaderOffset(w.reserve) : streamHeaderOffset(w.reserve)+StreamBlockHeaderSize]
	h.encode(enc)
	h.HeaderCRC64 = headerChecksum(enc)
	le.PutUint64(enc[offHeaderCRC:], h.HeaderCRC64)

	return SealedRecord{
		Metadata:        w.meta,
		Payload:         w.page[:roundUp(pageBytes, PageSize)],
		OperationNumber: h.HighestOperationID,
		StreamOffset:    h.StreamOffset(),
		DataSize:        w.size,
		Barrier:         barrier,
	}
}

// copyPayload copies payload bytes [from, size) into dst where the payload
// is split as meta[:metaCap] followed by page.
func copyPayload(dst, meta []byte, metaCap int, page []byte, from, size int) int {
	n := 0
	for n < len(dst) && from < size {
		var src []byte
		if from < metaCap {
			end := metaCap
			if size < end {
				end = size
			}
			src = meta[from:end]
		} else {
			src = page[from-metaCap : size-metaCap]
		}
		c := copy(dst[n:], src)
		n += c
		from += c
	}
	return n
}
