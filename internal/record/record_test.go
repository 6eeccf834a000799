package record

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
)

const testReserve = 64

func fill(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

func sealed(t *testing.T, maxBlock int, off int64, op uint64, id uuid.UUID, data []byte, barrier bool) SealedRecord {
	t.Helper()
	w, err := NewWriteBuffer(testReserve, maxBlock, off, op, id)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	if n := w.Put(data); n != len(data) {
		t.Fatalf("put: %d of %d", n, len(data))
	}
	rec := w.Seal(-1, barrier)
	// detach from the buffer so tests may mutate freely
	rec.Metadata = append([]byte(nil), rec.Metadata...)
	rec.Payload = append([]byte(nil), rec.Payload...)
	return rec
}

func readAll(t *testing.T, spec ReadSpec, blocks ...Carrier) []byte {
	t.Helper()
	rb, err := OpenForRead(spec, blocks...)
	if err != nil {
		t.Fatalf("open for read: %v", err)
	}
	out := make([]byte, rb.Remaining())
	if n := rb.Get(out); n != len(out) {
		t.Fatalf("get: %d of %d", n, len(out))
	}
	return out
}

func TestSealSmallRecordStaysInMetadata(t *testing.T) {
	id := uuid.New()
	data := fill(100, 1)
	rec := sealed(t, 16384, 0, 1, id, data, false)
	if len(rec.Payload) != 0 {
		t.Fatalf("payload carrier should be empty, got %d", len(rec.Payload))
	}
	if len(rec.Metadata) != FixedMetadataSize {
		t.Fatalf("metadata size %d", len(rec.Metadata))
	}
	got := readAll(t, ReadSpec{Reserve: testReserve, LogID: id}, Carrier{Metadata: rec.Metadata, Payload: rec.Payload, Limit: -1})
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch")
	}
}

func TestSealLargeRecordSpansPages(t *testing.T) {
	id := uuid.New()
	data := fill(10000, 3)
	rec := sealed(t, 16384, 500, 7, id, data, true)

	pageBytes := 10000 - MetadataPayloadCapacity(testReserve)
	if want := roundUp(pageBytes, PageSize); len(rec.Payload) != want {
		t.Fatalf("payload carrier %d want %d", len(rec.Payload), want)
	}
	if rec.OperationNumber != 7 || rec.StreamOffset != 500 || rec.DataSize != 10000 {
		t.Fatalf("sealed record fields: %+v", rec)
	}

	mh, sh, err := ParseHeader(testReserve, rec.Metadata)
	if err != nil {
		t.Fatalf("parse header: %v", err)
	}
	if !mh.IsBarrier() || sh.StreamOffsetPlusOne != 501 || sh.HighestOperationID != 7 || sh.StreamID != id {
		t.Fatalf("headers: %+v %+v", mh, sh)
	}
	if sh.HeaderCRC64 == 0 || sh.HeadTruncationPoint != -1 {
		t.Fatalf("header crc/htp: %+v", sh)
	}

	got := readAll(t, ReadSpec{Reserve: testReserve, Position: 500}, Carrier{Metadata: rec.Metadata, Payload: rec.Payload, Limit: -1})
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch")
	}
}

func TestPutClampsToCapacity(t *testing.T) {
	w, err := NewWriteBuffer(testReserve, FixedMetadataSize, 0, 1, uuid.New())
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	n := w.Put(make([]byte, 5000))
	if n != MetadataPayloadCapacity(testReserve) || w.Remaining() != 0 {
		t.Fatalf("put %d remaining %d", n, w.Remaining())
	}
	if w.Put([]byte{1}) != 0 {
		t.Fatalf("full buffer accepted a byte")
	}
}

func TestSingleBitCorruptionDetected(t *testing.T) {
	id := uuid.New()
	data := fill(6000, 9)
	rec := sealed(t, 16384, 0, 1, id, data, false)

	hdrStart := streamHeaderOffset(testReserve)
	var positions []int
	for i := hdrStart; i < hdrStart+StreamBlockHeaderSize; i++ {
		positions = append(positions, i)
	}
	// metadata-resident payload
	for i := payloadOffset(testReserve); i < FixedMetadataSize; i += 97 {
		positions = append(positions, i)
	}

	for _, pos := range positions {
		for bit := 0; bit < 8; bit++ {
			meta := append([]byte(nil), rec.Metadata...)
			meta[pos] ^= 1 << bit
			_, err := OpenForRead(ReadSpec{Reserve: testReserve}, Carrier{Metadata: meta, Payload: rec.Payload, Limit: -1})
			if err == nil {
				t.Fatalf("flip at metadata byte %d bit %d not detected", pos, bit)
			}
			if !errors.Is(err, ErrChecksum) && !errors.Is(err, ErrCorrupt) {
				t.Fatalf("unexpected error kind: %v", err)
			}
		}
	}

	pageData := 6000 - MetadataPayloadCapacity(testReserve)
	for pos := 0; pos < pageData; pos += 31 {
		payload := append([]byte(nil), rec.Payload...)
		payload[pos] ^= 0x10
		_, err := OpenForRead(ReadSpec{Reserve: testReserve}, Carrier{Metadata: rec.Metadata, Payload: payload, Limit: -1})
		if !errors.Is(err, ErrChecksum) {
			t.Fatalf("flip at payload byte %d: %v", pos, err)
		}
	}
}

func TestSealTwicePanics(t *testing.T) {
	w, err := NewWriteBuffer(testReserve, 8192, 0, 1, uuid.New())
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	w.Seal(-1, false)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	w.Seal(-1, false)
}

func TestOpenForReadOutOfSpan(t *testing.T) {
	rec := sealed(t, 8192, 100, 1, uuid.New(), fill(50, 0), false)
	c := Carrier{Metadata: rec.Metadata, Payload: rec.Payload, Limit: -1}
	for _, pos := range []int64{99, 150, 4000} {
		if _, err := OpenForRead(ReadSpec{Reserve: testReserve, Position: pos}, c); !errors.Is(err, ErrOutOfSpan) {
			t.Fatalf("position %d: %v", pos, err)
		}
	}
	rb, err := OpenForRead(ReadSpec{Reserve: testReserve, Position: 149}, c)
	if err != nil || rb.Remaining() != 1 {
		t.Fatalf("last byte: %v %v", rb, err)
	}
}

func TestOpenForReadRejectsForeignBlock(t *testing.T) {
	rec := sealed(t, 8192, 0, 1, uuid.New(), fill(10, 0), false)
	_, err := OpenForRead(ReadSpec{Reserve: testReserve, LogID: uuid.New()}, Carrier{Metadata: rec.Metadata, Payload: rec.Payload, Limit: -1})
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected corrupt, got %v", err)
	}
}

func TestLimitClipsShadowedBytes(t *testing.T) {
	rec := sealed(t, 8192, 0, 1, uuid.New(), fill(100, 0), false)
	rb, err := OpenForRead(ReadSpec{Reserve: testReserve}, Carrier{Metadata: rec.Metadata, Payload: rec.Payload, Limit: 40})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if rb.End() != 40 {
		t.Fatalf("end %d", rb.End())
	}
	if _, err := OpenForRead(ReadSpec{Reserve: testReserve, Position: 40}, Carrier{Metadata: rec.Metadata, Payload: rec.Payload, Limit: 40}); !errors.Is(err, ErrOutOfSpan) {
		t.Fatalf("clipped byte served: %v", err)
	}
}

func TestOpenForReadJoinsContiguousRun(t *testing.T) {
	id := uuid.New()
	a := sealed(t, 8192, 0, 1, id, fill(300, 1), false)
	b := sealed(t, 8192, 300, 2, id, fill(5000, 2), false)
	gap := sealed(t, 8192, 9000, 3, id, fill(10, 3), false)

	rb, err := OpenForRead(ReadSpec{Reserve: testReserve, LogID: id, Position: 10},
		Carrier{Metadata: a.Metadata, Payload: a.Payload, Limit: 300},
		Carrier{Metadata: b.Metadata, Payload: b.Payload, Limit: 9000},
		Carrier{Metadata: gap.Metadata, Payload: gap.Payload, Limit: -1},
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if rb.Blocks() != 2 || rb.End() != 5300 || rb.Remaining() != 5290 {
		t.Fatalf("run: blocks=%d end=%d remaining=%d", rb.Blocks(), rb.End(), rb.Remaining())
	}
	if rb.LastHeader().HighestOperationID != 2 {
		t.Fatalf("last header op %d", rb.LastHeader().HighestOperationID)
	}
	want := append(fill(300, 1)[10:], fill(5000, 2)...)
	got := make([]byte, rb.Remaining())
	rb.Get(got)
	if !bytes.Equal(got, want) {
		t.Fatalf("joined bytes mismatch")
	}
}

func TestZeroLengthBarrier(t *testing.T) {
	rec := sealed(t, 8192, 42, 5, uuid.New(), nil, true)
	if len(rec.Payload) != 0 || rec.DataSize != 0 {
		t.Fatalf("barrier carries data: %+v", rec)
	}
	mh, _, err := ParseHeader(testReserve, rec.Metadata)
	if err != nil || !mh.IsBarrier() {
		t.Fatalf("barrier header: %+v %v", mh, err)
	}
	rb, err := OpenForRead(ReadSpec{Reserve: testReserve, Position: 42}, Carrier{Metadata: rec.Metadata, Limit: -1})
	if err != nil || rb.Remaining() != 0 {
		t.Fatalf("open barrier: %v", err)
	}
}

func TestWriteBufferIntersectsAndReadAt(t *testing.T) {
	w, err := NewWriteBuffer(testReserve, 16384, 1000, 1, uuid.New())
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	if w.Intersects(1000, 10) {
		t.Fatalf("empty buffer intersects")
	}
	data := fill(5000, 4)
	w.Put(data)

	cases := []struct {
		off, size int64
		want      bool
	}{
		{990, 10, false},
		{990, 11, true},
		{5999, 1, true},
		{6000, 5, false},
	}
	for _, c := range cases {
		if got := w.Intersects(c.off, c.size); got != c.want {
			t.Fatalf("Intersects(%d,%d)=%v", c.off, c.size, got)
		}
	}

	p := make([]byte, 200)
	if n := w.ReadAt(p, 1000+3900); n != 200 {
		t.Fatalf("read at: %d", n)
	}
	if !bytes.Equal(p, data[3900:4100]) {
		t.Fatalf("read at crosses carriers incorrectly")
	}

	w.Seal(-1, false)
	if w.Intersects(1000, 10) {
		t.Fatalf("sealed buffer intersects")
	}
}

func TestValidateGeometry(t *testing.T) {
	if err := ValidateGeometry(testReserve, 5000); err == nil {
		t.Fatalf("unaligned block size accepted")
	}
	if err := ValidateGeometry(FixedMetadataSize, 8192); err == nil {
		t.Fatalf("oversized reserve accepted")
	}
	if err := ValidateGeometry(0, FixedMetadataSize); err != nil {
		t.Fatalf("minimal geometry: %v", err)
	}
}
