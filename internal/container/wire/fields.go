package wire

import (
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Encoders follow proto3: zero values are not written.

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	return appendVarint(b, num, uint64(v))
}

// appendSint64 zigzag-encodes v, for offsets where -1 is common.
func appendSint64(b []byte, num protowire.Number, v int64) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendUUID(b []byte, num protowire.Number, v uuid.UUID) []byte {
	if v == uuid.Nil {
		return b
	}
	return appendBytes(b, num, v[:])
}

func appendHandle(b []byte, num protowire.Number, v Handle) []byte {
	if v.IsZero() {
		return b
	}
	return appendBytes(b, num, v[:])
}

// appendMessage writes m as a length-delimited embedded message. Empty
// messages are still written so repeated fields keep their count.
func appendMessage(b []byte, num protowire.Number, m Message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.MarshalAppend(nil))
}

// field is one decoded field. Only varint and length-delimited fields are
// handed out; other wire types are skipped.
type field struct {
	num protowire.Number
	typ protowire.Type
	x   uint64
	raw []byte
}

func (f field) int64() int64  { return int64(f.x) }
func (f field) sint64() int64 { return protowire.DecodeZigZag(f.x) }
func (f field) bool() bool    { return protowire.DecodeBool(f.x) }
func (f field) int() int      { return int(int64(f.x)) }

// bytes copies the value so the message does not alias the input buffer.
func (f field) bytes() []byte { return append([]byte(nil), f.raw...) }

func (f field) str() string { return string(f.raw) }

func (f field) uuid() (uuid.UUID, error) {
	id, err := uuid.FromBytes(f.raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("field %d: %w", f.num, err)
	}
	return id, nil
}

func (f field) handle() (Handle, error) {
	var h Handle
	if len(f.raw) != len(h) {
		return h, fmt.Errorf("field %d: handle of %d bytes", f.num, len(f.raw))
	}
	copy(h[:], f.raw)
	return h, nil
}

// walk calls fn for every field in b, in order.
func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.x, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
