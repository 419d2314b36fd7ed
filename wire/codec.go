package wire

import (
	"encoding"
	"fmt"
)

// Codec carries wire messages over gRPC. It is installed explicitly
// (grpc.ForceServerCodec / grpc.ForceCodec) rather than registered globally, so
// it does not shadow the default protobuf codec for other services in-process.
//
// The bytes it produces are plain protobuf, so the content-subtype stays "proto".
type Codec struct{}

type binaryMessage interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(binaryMessage)
	if !ok {
		return nil, fmt.Errorf("wire: cannot marshal %T", v)
	}
	return m.MarshalBinary()
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(binaryMessage)
	if !ok {
		return fmt.Errorf("wire: cannot unmarshal into %T", v)
	}
	return m.UnmarshalBinary(data)
}

func (Codec) Name() string { return "proto" }
