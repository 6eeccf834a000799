package container

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/microsoft/service-fabric-sub058/internal/record"
)

func TestRecoveryInfoEncoding(t *testing.T) {
	in := RecoveryInfo{HighestOperationID: 9, TailAsn: 12345, MaxBlockSize: 1 << 18, HeadTruncationPoint: -1}
	out, err := DecodeRecoveryInfo(in.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v want %+v", out, in)
	}
	if _, err := DecodeRecoveryInfo([]byte{1, 2}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("short input: %v", err)
	}
}

func TestRecoveryInfoForEmptyStream(t *testing.T) {
	info, err := RecoveryInfoFor(nil, -1, 8192)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if info.HighestOperationID != 0 || info.TailAsn != 0 || info.HeadTruncationPoint != -1 || info.MaxBlockSize != 8192 {
		t.Fatalf("empty stream: %+v", info)
	}
}

func TestRecoveryInfoForLastRecord(t *testing.T) {
	w, err := record.NewWriteBuffer(ReservedMetadataSize, 8192, 100, 4, uuid.New())
	if err != nil {
		t.Fatalf("buffer: %v", err)
	}
	w.Put(make([]byte, 50))
	rec := w.Seal(20, false)

	info, err := RecoveryInfoFor(&Block{Asn: 100, Version: 4, Metadata: rec.Metadata, Payload: rec.Payload, Limit: -1}, 10, 8192)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if info.HighestOperationID != 4 || info.TailAsn != 150 || info.HeadTruncationPoint != 20 {
		t.Fatalf("info: %+v", info)
	}

	rec.Metadata[ReservedMetadataSize+record.MetadataBlockHeaderSize] ^= 1
	if _, err := RecoveryInfoFor(&Block{Asn: 100, Metadata: rec.Metadata}, -1, 8192); err == nil {
		t.Fatalf("corrupt header accepted")
	}
}

func TestVersionInfoEncoding(t *testing.T) {
	in := VersionInfo{Driver: "local", Version: "v0.3.1"}
	out, err := DecodeVersionInfo(in.Encode())
	if err != nil || out != in {
		t.Fatalf("got %+v err %v", out, err)
	}
	if _, err := DecodeVersionInfo([]byte{5, 0, 'a'}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("truncated: %v", err)
	}
}

func TestStatsPercentUsed(t *testing.T) {
	if p := (Stats{Capacity: 200, Used: 50}).PercentUsed(); p != 25 {
		t.Fatalf("percent: %d", p)
	}
	if p := (Stats{}).PercentUsed(); p != 0 {
		t.Fatalf("zero capacity: %d", p)
	}
}
