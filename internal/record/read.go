package record

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Carrier is one raw block as returned by a container read.
type Carrier struct {
	Metadata []byte
	Payload  []byte
	// Limit is the stream offset where the next record begins, or -1. Bytes
	// at or beyond it were superseded by a later write and are not served.
	Limit int64
}

// ReadSpec describes what the reader expects of the blocks it opens.
type ReadSpec struct {
	Reserve int
	// LogID, when set, must match every block's StreamID.
	LogID uuid.UUID
	// Position is the stream offset the first Get returns.
	Position int64
}

// ReadBuffer serves payload bytes from one or more consecutive validated
// blocks.
type ReadBuffer struct {
	base   int64
	data   []byte
	pos    int
	blocks int
	last   StreamBlockHeader
}

// OpenForRead validates blocks and positions the cursor at spec.Position,
// which must fall inside the first block. Following blocks are appended
// while they continue the byte range without a gap.
func OpenForRead(spec ReadSpec, blocks ...Carrier) (*ReadBuffer, error) {
	if len(blocks) == 0 {
		return nil, errors.New("record: no blocks to read")
	}
	sh, data, err := decodeBlock(spec, blocks[0])
	if err != nil {
		return nil, err
	}
	base := sh.StreamOffset()
	end := base + int64(len(data))
	if spec.Position < base || spec.Position > end || (spec.Position == end && end > base) {
		return nil, fmt.Errorf("%w: position %d, record [%d,%d)", ErrOutOfSpan, spec.Position, base, end)
	}
	rb := &ReadBuffer{base: base, data: data, pos: int(spec.Position - base), blocks: 1, last: sh}
	for _, c := range blocks[1:] {
		next, more, err := decodeBlock(spec, c)
		if err != nil {
			return nil, err
		}
		if next.StreamOffset() != rb.End() {
			break
		}
		rb.data = append(rb.data, more...)
		rb.blocks++
		rb.last = next
	}
	return rb, nil
}

func decodeBlock(spec ReadSpec, c Carrier) (StreamBlockHeader, []byte, error) {
	_, sh, err := ParseHeader(spec.Reserve, c.Metadata)
	if err != nil {
		return sh, nil, err
	}
	if spec.LogID != uuid.Nil && sh.StreamID != spec.LogID {
		return sh, nil, fmt.Errorf("%w: block belongs to %s", ErrCorrupt, sh.StreamID)
	}
	size := int(sh.DataSize)
	metaCap := MetadataPayloadCapacity(spec.Reserve)
	inMeta := size
	if inMeta > metaCap {
		inMeta = metaCap
	}
	start := payloadOffset(spec.Reserve)
	if len(c.Metadata) < start+inMeta || len(c.Payload) < size-inMeta {
		return sh, nil, fmt.Errorf("%w: data size %d exceeds carriers", ErrCorrupt, size)
	}
	metaPart := c.Metadata[start : start+inMeta]
	pagePart := c.Payload[:size-inMeta]
	if sum := dataChecksum(metaPart, pagePart); sum != sh.DataCRC64 {
		return sh, nil, fmt.Errorf("%w: data crc %#x, computed %#x", ErrChecksum, sh.DataCRC64, sum)
	}
	data := make([]byte, 0, size)
	data = append(data, metaPart...)
	data = append(data, pagePart...)
	if c.Limit >= 0 && c.Limit < sh.End() {
		keep := c.Limit - sh.StreamOffset()
		if keep < 0 {
			keep = 0
		}
		data = data[:keep]
	}
	return sh, data, nil
}

// Base is the stream offset of the first byte held.
func (r *ReadBuffer) Base() int64 { return r.base }

// End is the stream offset one past the last byte held.
func (r *ReadBuffer) End() int64 { return r.base + int64(len(r.data)) }

// Position is the stream offset the next Get reads.
func (r *ReadBuffer) Position() int64 { return r.base + int64(r.pos) }

// Remaining is the number of bytes left after the cursor.
func (r *ReadBuffer) Remaining() int { return len(r.data) - r.pos }

// Blocks is the number of records backing the buffer.
func (r *ReadBuffer) Blocks() int { return r.blocks }

// LastHeader is the stream block header of the final record held.
func (r *ReadBuffer) LastHeader() StreamBlockHeader { return r.last }

// Get copies from the cursor into p and advances it.
func (r *ReadBuffer) Get(p []byte) int {
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n
}

// Contains reports whether off is served by this buffer.
func (r *ReadBuffer) Contains(off int64) bool {
	return off >= r.base && off < r.End()
}

// Seek moves the cursor to off if the buffer holds it.
func (r *ReadBuffer) Seek(off int64) bool {
	if !r.Contains(off) {
		return false
	}
	r.pos = int(off - r.base)
	return true
}
