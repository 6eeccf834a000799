// Package wire defines the gRPC contract between the container driver and
// its clients: message types, their protobuf encoding, the service
// descriptor and the mapping between container errors and gRPC status codes.
//
// Messages are encoded in the protobuf wire format described by driver.proto.
// Each message type carries its own encoder built on protowire, so no
// generated code is involved. Clients select the codec per call with
// grpc.CallContentSubtype(CodecName); the server picks it up from the
// content subtype. grpc's default "proto" codec stays in place for the
// health service.
package wire

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype of the driver codec.
const CodecName = "protowire"

// Message is a driver message with a protobuf wire encoding.
type Message interface {
	// MarshalAppend appends the encoded message to b.
	MarshalAppend(b []byte) []byte
	// Unmarshal replaces the message with the one encoded in b. Unknown
	// fields are skipped.
	Unmarshal(b []byte) error
}

type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("wire: %T is not a driver message", v)
	}
	return m.MarshalAppend(nil), nil
}

func (codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("wire: %T is not a driver message", v)
	}
	if err := m.Unmarshal(data); err != nil {
		return fmt.Errorf("wire: decode %T: %w", v, err)
	}
	return nil
}

func (codec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(codec{})
}
