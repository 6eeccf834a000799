package wire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	pkgid "github.com/microsoft/service-fabric-sub058/pkg/id"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestStatusMappingRoundTrip(t *testing.T) {
	for _, sentinel := range []error{
		container.ErrNotFound,
		container.ErrExists,
		container.ErrGone,
		container.ErrClosed,
		container.ErrUnsupported,
		container.ErrCapacity,
		container.ErrInvalid,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		wrapped := fmt.Errorf("%w: stream 7", sentinel)
		back := FromStatus(ToStatus(wrapped))
		if !errors.Is(back, sentinel) {
			t.Fatalf("%v came back as %v", sentinel, back)
		}
	}
}

func TestUnknownErrorsAreInternal(t *testing.T) {
	st, _ := status.FromError(ToStatus(errors.New("disk on fire")))
	if st.Code() != codes.Internal {
		t.Fatalf("code: %v", st.Code())
	}
	if ToStatus(nil) != nil || FromStatus(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}

func TestCodecCarriesUUIDsAndBlocks(t *testing.T) {
	c := codec{}
	in := &ReadReply{Blocks: []Block{
		{Version: 3, Asn: 0, Metadata: []byte{1, 2}, Payload: nil, Limit: -1},
		{},
		{Version: 4, Asn: 4096, Payload: []byte("page"), Limit: 8192},
	}}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out ReadReply
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Blocks) != 3 {
		t.Fatalf("decoded %d blocks", len(out.Blocks))
	}
	if got := out.Blocks[0]; got.Limit != -1 || got.Version != 3 || !bytes.Equal(got.Metadata, []byte{1, 2}) {
		t.Fatalf("first block %+v", got)
	}
	if got := out.Blocks[2]; got.Asn != 4096 || got.Limit != 8192 || string(got.Payload) != "page" {
		t.Fatalf("last block %+v", got)
	}

	id := uuid.New()
	b, err = c.Marshal(&AliasReply{ID: id})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var ar AliasReply
	if err := c.Unmarshal(b, &ar); err != nil || ar.ID != id {
		t.Fatalf("alias reply %v %v", ar, err)
	}
}

func TestEncodingIsProtobufWireFormat(t *testing.T) {
	h := pkgid.NewGenerator().Next()
	req := &TruncateRequest{Stream: h, Head: -1, Tail: 300}
	got := req.MarshalAppend(nil)

	var want []byte
	want = protowire.AppendTag(want, 1, protowire.BytesType)
	want = protowire.AppendBytes(want, h[:])
	want = protowire.AppendTag(want, 2, protowire.VarintType)
	want = protowire.AppendVarint(want, protowire.EncodeZigZag(-1))
	want = protowire.AppendTag(want, 3, protowire.VarintType)
	want = protowire.AppendVarint(want, protowire.EncodeZigZag(300))
	if !bytes.Equal(got, want) {
		t.Fatalf("encoded %x, want %x", got, want)
	}
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	b := (&StatsReply{Path: "/c", Capacity: 1 << 20, Streams: 2}).MarshalAppend(nil)
	b = protowire.AppendTag(b, 99, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)
	b = protowire.AppendTag(b, 98, protowire.BytesType)
	b = protowire.AppendString(b, "from a newer driver")

	var out StatsReply
	if err := out.Unmarshal(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Path != "/c" || out.Capacity != 1<<20 || out.Streams != 2 {
		t.Fatalf("decoded %+v", out)
	}
}

func TestMalformedInputIsRejected(t *testing.T) {
	b := (&HandleRequest{Handle: pkgid.NewGenerator().Next()}).MarshalAppend(nil)
	var out HandleRequest
	if err := (codec{}).Unmarshal(b[:len(b)-3], &out); err == nil {
		t.Fatalf("truncated message decoded")
	}

	short := protowire.AppendTag(nil, 1, protowire.BytesType)
	short = protowire.AppendBytes(short, []byte{1, 2, 3})
	if err := out.Unmarshal(short); err == nil {
		t.Fatalf("short handle decoded")
	}

	if _, err := (codec{}).Marshal("not a message"); err == nil {
		t.Fatalf("non-message marshalled")
	}
}
