package local

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - m                         (container metadata)
// - s/{sid16}/m               (stream metadata: head truncation point)
// - s/{sid16}/b/{asn_be8}     (records)
// - a/{alias}                 (alias -> sid16)

var (
	containerMetaKey = []byte("m")
	streamPrefix     = []byte("s/")
	aliasPrefix      = []byte("a/")
	metaSuffix       = []byte("/m")
	blockSeg         = []byte("/b/")
)

const blockKeyLen = 2 + 16 + 3 + 8

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func keyStreamBase(sid uuid.UUID) []byte {
	k := make([]byte, 0, blockKeyLen)
	k = append(k, streamPrefix...)
	k = append(k, sid[:]...)
	return k
}

// keyStreamMeta builds the stream metadata key.
func keyStreamMeta(sid uuid.UUID) []byte {
	return append(keyStreamBase(sid), metaSuffix...)
}

// keyBlock builds a record key with a big-endian ASN for ordering.
func keyBlock(sid uuid.UUID, asn int64) []byte {
	k := append(keyStreamBase(sid), blockSeg...)
	return appendBE8(k, uint64(asn))
}

// keyBlockUpper is the exclusive upper bound of every record key of sid.
func keyBlockUpper(sid uuid.UUID) []byte {
	k := append(keyStreamBase(sid), '/', 'b'+1)
	return k
}

// keyStreamUpper bounds every key of sid.
func keyStreamUpper(sid uuid.UUID) []byte {
	k := keyStreamBase(sid)
	return append(k, '/'+1)
}

func keyAlias(alias string) []byte {
	k := make([]byte, 0, len(aliasPrefix)+len(alias))
	k = append(k, aliasPrefix...)
	return append(k, alias...)
}

func prefixUpper(prefix []byte) []byte {
	u := append([]byte(nil), prefix...)
	u[len(u)-1]++
	return u
}

// parseBlockKey extracts stream id and ASN from a record key.
func parseBlockKey(k []byte) (uuid.UUID, int64, bool) {
	var sid uuid.UUID
	if len(k) != blockKeyLen || string(k[18:21]) != string(blockSeg) {
		return sid, 0, false
	}
	copy(sid[:], k[2:18])
	return sid, int64(binary.BigEndian.Uint64(k[21:])), true
}

// parseStreamMetaKey extracts the stream id from a stream metadata key.
func parseStreamMetaKey(k []byte) (uuid.UUID, bool) {
	var sid uuid.UUID
	if len(k) != 2+16+2 || string(k[18:]) != string(metaSuffix) {
		return sid, false
	}
	copy(sid[:], k[2:18])
	return sid, true
}
