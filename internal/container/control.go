package container

import (
	"encoding/binary"
	"fmt"

	"github.com/microsoft/service-fabric-sub058/internal/record"
)

// ControlCode names a Stream.Control operation.
type ControlCode uint32

const (
	// ControlQueryRecoveryInfo returns an encoded RecoveryInfo.
	ControlQueryRecoveryInfo ControlCode = iota + 1
	// ControlQueryVersion returns an encoded VersionInfo.
	ControlQueryVersion
)

func (c ControlCode) String() string {
	switch c {
	case ControlQueryRecoveryInfo:
		return "query-recovery-info"
	case ControlQueryVersion:
		return "query-version"
	default:
		return fmt.Sprintf("control(%d)", uint32(c))
	}
}

// RecoveryInfo is the persisted state a logical log rebuilds its cursors
// from.
type RecoveryInfo struct {
	HighestOperationID  uint64
	TailAsn             int64
	MaxBlockSize        int64
	HeadTruncationPoint int64
}

const recoveryInfoSize = 32

// Encode serializes the info (little-endian, 32 bytes).
func (r RecoveryInfo) Encode() []byte {
	b := make([]byte, recoveryInfoSize)
	binary.LittleEndian.PutUint64(b[0:], r.HighestOperationID)
	binary.LittleEndian.PutUint64(b[8:], uint64(r.TailAsn))
	binary.LittleEndian.PutUint64(b[16:], uint64(r.MaxBlockSize))
	binary.LittleEndian.PutUint64(b[24:], uint64(r.HeadTruncationPoint))
	return b
}

// DecodeRecoveryInfo parses the output of ControlQueryRecoveryInfo.
func DecodeRecoveryInfo(b []byte) (RecoveryInfo, error) {
	if len(b) != recoveryInfoSize {
		return RecoveryInfo{}, fmt.Errorf("%w: recovery info is %d bytes", ErrInvalid, len(b))
	}
	return RecoveryInfo{
		HighestOperationID:  binary.LittleEndian.Uint64(b[0:]),
		TailAsn:             int64(binary.LittleEndian.Uint64(b[8:])),
		MaxBlockSize:        int64(binary.LittleEndian.Uint64(b[16:])),
		HeadTruncationPoint: int64(binary.LittleEndian.Uint64(b[24:])),
	}, nil
}

// RecoveryInfoFor derives recovery state from the last record of a stream.
// last is nil for a stream without records; head is the persisted head
// truncation point or -1.
func RecoveryInfoFor(last *Block, head int64, maxBlockSize int) (RecoveryInfo, error) {
	info := RecoveryInfo{MaxBlockSize: int64(maxBlockSize), HeadTruncationPoint: head}
	if last == nil {
		return info, nil
	}
	_, sh, err := record.ParseHeader(ReservedMetadataSize, last.Metadata)
	if err != nil {
		return RecoveryInfo{}, fmt.Errorf("recover from record at %d: %w", last.Asn, err)
	}
	info.HighestOperationID = sh.HighestOperationID
	info.TailAsn = sh.End()
	if sh.HeadTruncationPoint > info.HeadTruncationPoint {
		info.HeadTruncationPoint = sh.HeadTruncationPoint
	}
	return info, nil
}

// VersionInfo identifies the container implementation.
type VersionInfo struct {
	Driver  string
	Version string
}

// Encode serializes the info as two length-prefixed strings.
func (v VersionInfo) Encode() []byte {
	b := make([]byte, 0, 4+len(v.Driver)+len(v.Version))
	b = binary.LittleEndian.AppendUint16(b, uint16(len(v.Driver)))
	b = append(b, v.Driver...)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(v.Version)))
	b = append(b, v.Version...)
	return b
}

// DecodeVersionInfo parses the output of ControlQueryVersion.
func DecodeVersionInfo(b []byte) (VersionInfo, error) {
	var v VersionInfo
	var ok bool
	if v.Driver, b, ok = readString(b); !ok {
		return v, fmt.Errorf("%w: truncated version info", ErrInvalid)
	}
	if v.Version, _, ok = readString(b); !ok {
		return v, fmt.Errorf("%w: truncated version info", ErrInvalid)
	}
	return v, nil
}

func readString(b []byte) (string, []byte, bool) {
	if len(b) < 2 {
		return "", nil, false
	}
	n := int(binary.LittleEndian.Uint16(b))
	if len(b) < 2+n {
		return "", nil, false
	}
	return string(b[2 : 2+n]), b[2+n:], true
}
