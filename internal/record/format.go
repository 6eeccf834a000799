package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc64"

	"github.com/google/uuid"
)

const (
	// FixedMetadataSize is the size of every metadata carrier.
	FixedMetadataSize = 4096
	// PageSize is the alignment of the payload carrier.
	PageSize = 4096

	// MetadataBlockHeaderSize is OffsetToStreamHeader(4) | Flags(4) | Reserved(8).
	MetadataBlockHeaderSize = 16
	// StreamBlockHeaderSize is the encoded size of StreamBlockHeader.
	StreamBlockHeaderSize = 72

	// Signature marks a stream block header.
	Signature uint64 = 0xF123ABC9B4B30F76

	// FlagEndOfLogicalRecord is set on barrier records.
	FlagEndOfLogicalRecord uint32 = 0x1
)

// Stream block header field offsets.
const (
	offSignature      = 0
	offStreamOffset   = 8
	offHighestOpID    = 16
	offStreamID       = 24
	offHeadTruncation = 40
	offDataSize       = 48
	offReserved       = 52
	offHeaderCRC      = 56
	offDataCRC        = 64
)

var (
	// ErrCorrupt reports a block whose headers cannot be trusted.
	ErrCorrupt = errors.New("record: corrupt block")
	// ErrChecksum reports a header or payload checksum mismatch.
	ErrChecksum = errors.New("record: checksum mismatch")
	// ErrOutOfSpan reports a read target outside the span declared by the block.
	ErrOutOfSpan = errors.New("record: offset outside record span")
)

var crcTable = crc64.MakeTable(crc64.ECMA)

// MetadataBlockHeader sits right after the container-reserved region.
type MetadataBlockHeader struct {
	OffsetToStreamHeader uint32
	Flags                uint32
}

// IsBarrier reports whether the block ends a logical record.
func (m MetadataBlockHeader) IsBarrier() bool { return m.Flags&FlagEndOfLogicalRecord != 0 }

// StreamBlockHeader describes the payload of one block.
type StreamBlockHeader struct {
	Signature           uint64
	StreamOffsetPlusOne uint64
	HighestOperationID  uint64
	StreamID            uuid.UUID
	HeadTruncationPoint int64
	DataSize            uint32
	HeaderCRC64         uint64
	DataCRC64           uint64
}

// StreamOffset is the logical offset of the first payload byte.
func (h StreamBlockHeader) StreamOffset() int64 { return int64(h.StreamOffsetPlusOne) - 1 }

// End is the logical offset one past the last payload byte.
func (h StreamBlockHeader) End() int64 { return h.StreamOffset() + int64(h.DataSize) }

func (h *StreamBlockHeader) encode(b []byte) {
	le := binary.LittleEndian
	le.PutUint64(b[offSignature:], h.Signature)
	le.PutUint64(b[offStreamOffset:], h.StreamOffsetPlusOne)
	le.PutUint64(b[offHighestOpID:], h.HighestOperationID)
	copy(b[offStreamID:offStreamID+16], h.StreamID[:])
	le.PutUint64(b[offHeadTruncation:], uint64(h.HeadTruncationPoint))
	le.PutUint32(b[offDataSize:], h.DataSize)
	le.PutUint32(b[offReserved:], 0)
	le.PutUint64(b[offHeaderCRC:], h.HeaderCRC64)
	le.PutUint64(b[offDataCRC:], h.DataCRC64)
}

func (h *StreamBlockHeader) decode(b []byte) {
	le := binary.LittleEndian
	h.Signature = le.Uint64(b[offSignature:])
	h.StreamOffsetPlusOne = le.Uint64(b[offStreamOffset:])
	h.HighestOperationID = le.Uint64(b[offHighestOpID:])
	copy(h.StreamID[:], b[offStreamID:offStreamID+16])
	h.HeadTruncationPoint = int64(le.Uint64(b[offHeadTruncation:]))
	h.DataSize = le.Uint32(b[offDataSize:])
	h.HeaderCRC64 = le.Uint64(b[offHeaderCRC:])
	h.DataCRC64 = le.Uint64(b[offDataCRC:])
}

// headerChecksum computes the header CRC over an encoded header with the
// HeaderCRC64 field treated as zero. Zero is reserved for "unsealed", so a
// zero result is stored as one.
func headerChecksum(encoded []byte) uint64 {
	var tmp [StreamBlockHeaderSize]byte
	copy(tmp[:], encoded[:StreamBlockHeaderSize])
	binary.LittleEndian.PutUint64(tmp[offHeaderCRC:], 0)
	sum := crc64.Checksum(tmp[:], crcTable)
	if sum == 0 {
		sum = 1
	}
	return sum
}

func dataChecksum(parts ...[]byte) uint64 {
	var sum uint64
	for _, p := range parts {
		sum = crc64.Update(sum, crcTable, p)
	}
	return sum
}

// streamHeaderOffset is where the stream block header begins for a given
// container reserve.
func streamHeaderOffset(reserve int) int { return reserve + MetadataBlockHeaderSize }

// payloadOffset is where metadata-resident payload begins.
func payloadOffset(reserve int) int {
	return streamHeaderOffset(reserve) + StreamBlockHeaderSize
}

// MetadataPayloadCapacity is how many payload bytes fit in the metadata
// carrier for a given reserve.
func MetadataPayloadCapacity(reserve int) int { return FixedMetadataSize - payloadOffset(reserve) }

// PayloadCapacity is the maximum DataSize of a block of maxBlockSize bytes.
func PayloadCapacity(reserve, maxBlockSize int) int {
	return MetadataPayloadCapacity(reserve) + (maxBlockSize - FixedMetadataSize)
}

// ValidateGeometry checks reserve and maxBlockSize for use with the codec.
func ValidateGeometry(reserve, maxBlockSize int) error {
	if reserve < 0 || payloadOffset(reserve) >= FixedMetadataSize {
		return fmt.Errorf("record: metadata reserve %d leaves no room for headers", reserve)
	}
	if maxBlockSize < FixedMetadataSize || maxBlockSize%PageSize != 0 {
		return fmt.Errorf("record: max block size %d must be a multiple of %d and at least %d", maxBlockSize, PageSize, FixedMetadataSize)
	}
	return nil
}

func roundUp(n, to int) int {
	return (n + to - 1) / to * to
}

// ParseHeader decodes and verifies the metadata and stream block headers of a
// sealed block without touching the payload.
func ParseHeader(reserve int, metadata []byte) (MetadataBlockHeader, StreamBlockHeader, error) {
	var mh MetadataBlockHeader
	var sh StreamBlockHeader
	if reserve < 0 || len(metadata) < payloadOffset(reserve) {
		return mh, sh, fmt.Errorf("%w: metadata carrier is %d bytes", ErrCorrupt, len(metadata))
	}
	le := binary.LittleEndian
	mh.OffsetToStreamHeader = le.Uint32(metadata[reserve:])
	mh.Flags = le.Uint32(metadata[reserve+4:])
	off := int(mh.OffsetToStreamHeader)
	if off != streamHeaderOffset(reserve) {
		return mh, sh, fmt.Errorf("%w: stream header offset %d", ErrCorrupt, off)
	}
	enc := metadata[off : off+StreamBlockHeaderSize]
	sh.decode(enc)
	if sh.Signature != Signature {
		return mh, sh, fmt.Errorf("%w: bad signature %#x", ErrCorrupt, sh.Signature)
	}
	if sh.HeaderCRC64 == 0 {
		return mh, sh, fmt.Errorf("%w: block is not sealed", ErrCorrupt)
	}
	if sum := headerChecksum(enc); sum != sh.HeaderCRC64 {
		return mh, sh, fmt.Errorf("%w: header crc %#x, computed %#x", ErrChecksum, sh.HeaderCRC64, sum)
	}
	if sh.StreamOffsetPlusOne == 0 {
		return mh, sh, fmt.Errorf("%w: zero stream offset", ErrCorrupt)
	}
	return mh, sh, nil
}
