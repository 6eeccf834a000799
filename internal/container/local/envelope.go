package local

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

// Record value encoding: version(8B BE) | metaLen(4B BE) | metadata | payload.

const envelopeHeader = 12

var errBadEnvelope = errors.New("local: malformed record value")

func encodeEnvelope(version uint64, metadata, payload []byte) []byte {
	out := make([]byte, envelopeHeader, envelopeHeader+len(metadata)+len(payload))
	binary.BigEndian.PutUint64(out[0:], version)
	binary.BigEndian.PutUint32(out[8:], uint32(len(metadata)))
	out = append(out, metadata...)
	return append(out, payload...)
}

func decodeEnvelope(b []byte) (version uint64, metadata, payload []byte, err error) {
	if len(b) < envelopeHeader {
		return 0, nil, nil, errBadEnvelope
	}
	version = binary.BigEndian.Uint64(b[0:])
	n := int(binary.BigEndian.Uint32(b[8:]))
	if envelopeHeader+n > len(b) {
		return 0, nil, nil, errBadEnvelope
	}
	return version, b[envelopeHeader : envelopeHeader+n], b[envelopeHeader+n:], nil
}

// Container metadata: id(16) | capacity(8B BE) | maxStreams(4B BE) | maxBlockSize(4B BE).

type containerMeta struct {
	ID           uuid.UUID
	Capacity     int64
	MaxStreams   int
	MaxBlockSize int
}

func (m containerMeta) encode() []byte {
	b := make([]byte, 32)
	copy(b[:16], m.ID[:])
	binary.BigEndian.PutUint64(b[16:], uint64(m.Capacity))
	binary.BigEndian.PutUint32(b[24:], uint32(m.MaxStreams))
	binary.BigEndian.PutUint32(b[28:], uint32(m.MaxBlockSize))
	return b
}

func decodeContainerMeta(b []byte) (containerMeta, error) {
	var m containerMeta
	if len(b) != 32 {
		return m, errBadEnvelope
	}
	copy(m.ID[:], b[:16])
	m.Capacity = int64(binary.BigEndian.Uint64(b[16:]))
	m.MaxStreams = int(binary.BigEndian.Uint32(b[24:]))
	m.MaxBlockSize = int(binary.BigEndian.Uint32(b[28:]))
	return m, nil
}

// stampReserve writes the container's own view of the record into the
// reserved prefix of the metadata carrier.
func stampReserve(metadata []byte, asn int64, version uint64) {
	if len(metadata) < 16 {
		return
	}
	binary.LittleEndian.PutUint64(metadata[0:], uint64(asn))
	binary.LittleEndian.PutUint64(metadata[8:], version)
}
