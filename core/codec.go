package core

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// ringWireCodecName is registered with grpc's encoding package so the
// transport can move our hand-rolled wire messages without protoc-generated
// protobuf types, avoiding a vendored protobuf toolchain.
const ringWireCodecName = "ringwire"

// wireCodec implements grpc/encoding.Codec.
type wireCodec struct{}

func (wireCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("ringwire: %T does not implement wireMessage", v)
	}
	return m.marshalWire(), nil
}

func (wireCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("ringwire: %T does not implement wireMessage", v)
	}
	return m.unmarshalWire(data)
}

func (wireCodec) Name() string { return ringWireCodecName }

func init() {
	encoding.RegisterCodec(wireCodec{})
}
