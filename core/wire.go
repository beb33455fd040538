package core

// wire.go implements the bidirectional conversion between core values and
// their length-framed wire form. Scalars are little-endian regardless of
// host architecture, so a cluster can mix CPU families.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeFloat64(buf *bytes.Buffer, v float64) {
	writeUint64(buf, math.Float64bits(v))
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func writeInt32Slice(buf *bytes.Buffer, vals []int32) {
	writeUint32(buf, uint32(len(vals)))
	for _, v := range vals {
		writeUint32(buf, uint32(v))
	}
}

func writeStringSlice(buf *bytes.Buffer, vals []string) {
	writeUint32(buf, uint32(len(vals)))
	for _, v := range vals {
		writeString(buf, v)
	}
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) readN(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) readUint32() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *byteReader) readUint64() (uint64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *byteReader) readFloat64() (float64, error) {
	u, err := r.readUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}

func (r *byteReader) readBool() (bool, error) {
	b, err := r.readN(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func (r *byteReader) readBytes() ([]byte, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	return r.readN(int(n))
}

func (r *byteReader) readString() (string, error) {
	b, err := r.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *byteReader) readInt32Slice() ([]int32, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		v, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		out[i] = int32(v)
	}
	return out, nil
}

func (r *byteReader) readStringSlice() ([]string, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := r.readString()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// encodeTensor writes t to buf. Validation of shape/dtype consistency is the
// caller's responsibility (see Tensor.Validate) so decode can assume a
// well-formed peer but still re-validates defensively.
func encodeTensor(buf *bytes.Buffer, t Tensor) {
	writeString(buf, t.Dtype)
	writeInt32Slice(buf, t.Shape)
	writeBytes(buf, t.Bytes)
}

func decodeTensor(r *byteReader) (Tensor, error) {
	dtype, err := r.readString()
	if err != nil {
		return Tensor{}, err
	}
	shape, err := r.readInt32Slice()
	if err != nil {
		return Tensor{}, err
	}
	data, err := r.readBytes()
	if err != nil {
		return Tensor{}, err
	}
	t := Tensor{Dtype: dtype, Shape: shape, Bytes: data}
	if err := t.Validate(); err != nil {
		return Tensor{}, err
	}
	return t, nil
}

func encodeShard(buf *bytes.Buffer, s Shard) {
	writeString(buf, s.ModelID)
	writeUint32(buf, s.StartLayer)
	writeUint32(buf, s.EndLayer)
	writeUint32(buf, s.NLayers)
}

func decodeShard(r *byteReader) (Shard, error) {
	modelID, err := r.readString()
	if err != nil {
		return Shard{}, err
	}
	start, err := r.readUint32()
	if err != nil {
		return Shard{}, err
	}
	end, err := r.readUint32()
	if err != nil {
		return Shard{}, err
	}
	n, err := r.readUint32()
	if err != nil {
		return Shard{}, err
	}
	s := Shard{ModelID: modelID, StartLayer: start, EndLayer: end, NLayers: n}
	if err := s.Validate(); err != nil {
		return Shard{}, err
	}
	return s, nil
}

func encodeCapabilities(buf *bytes.Buffer, c DeviceCapabilities) {
	writeString(buf, c.Model)
	writeString(buf, c.Chip)
	writeUint32(buf, c.MemoryMiB)
	writeFloat64(buf, float64(c.Flops.FP32))
	writeFloat64(buf, float64(c.Flops.FP16))
	writeFloat64(buf, float64(c.Flops.Int8))
}

func decodeCapabilities(r *byteReader) (DeviceCapabilities, error) {
	model, err := r.readString()
	if err != nil {
		return DeviceCapabilities{}, err
	}
	chip, err := r.readString()
	if err != nil {
		return DeviceCapabilities{}, err
	}
	mem, err := r.readUint32()
	if err != nil {
		return DeviceCapabilities{}, err
	}
	fp32, err := r.readFloat64()
	if err != nil {
		return DeviceCapabilities{}, err
	}
	fp16, err := r.readFloat64()
	if err != nil {
		return DeviceCapabilities{}, err
	}
	int8v, err := r.readFloat64()
	if err != nil {
		return DeviceCapabilities{}, err
	}
	return DeviceCapabilities{
		Model:     model,
		Chip:      chip,
		MemoryMiB: mem,
		Flops:     DeviceFlops{FP32: float32(fp32), FP16: float32(fp16), Int8: float32(int8v)},
	}, nil
}

// encodeState writes an InferenceState. Empty/nil encodes to a zero-length
// payload, which decodes back to "absent".
func encodeState(buf *bytes.Buffer, s InferenceState) {
	writeBytes(buf, s)
}

func decodeState(r *byteReader) (InferenceState, error) {
	b, err := r.readBytes()
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	return InferenceState(b), nil
}

func encodeTopology(buf *bytes.Buffer, t Topology) {
	writeUint32(buf, uint32(len(t.Nodes)))
	for id, caps := range t.Nodes {
		writeString(buf, id)
		encodeCapabilities(buf, caps)
	}
	writeUint32(buf, uint32(len(t.PeerGraph)))
	for from, edges := range t.PeerGraph {
		writeString(buf, from)
		writeUint32(buf, uint32(len(edges)))
		for _, e := range edges {
			writeString(buf, e.To)
			writeString(buf, e.Description)
		}
	}
}

func decodeTopology(r *byteReader) (Topology, error) {
	top := NewTopology()
	nNodes, err := r.readUint32()
	if err != nil {
		return Topology{}, err
	}
	for i := uint32(0); i < nNodes; i++ {
		id, err := r.readString()
		if err != nil {
			return Topology{}, err
		}
		caps, err := decodeCapabilities(r)
		if err != nil {
			return Topology{}, err
		}
		top.Nodes[id] = caps
	}
	nEdgeGroups, err := r.readUint32()
	if err != nil {
		return Topology{}, err
	}
	for i := uint32(0); i < nEdgeGroups; i++ {
		from, err := r.readString()
		if err != nil {
			return Topology{}, err
		}
		nEdges, err := r.readUint32()
		if err != nil {
			return Topology{}, err
		}
		edges := make([]TopologyEdge, nEdges)
		for j := range edges {
			to, err := r.readString()
			if err != nil {
				return Topology{}, err
			}
			desc, err := r.readString()
			if err != nil {
				return Topology{}, err
			}
			edges[j] = TopologyEdge{To: to, Description: desc}
		}
		top.PeerGraph[from] = edges
	}
	return top, nil
}

// wireMessage is implemented by every RPC request/response type so the grpc
// custom codec (see codec.go) can marshal/unmarshal them without protoc.
type wireMessage interface {
	marshalWire() []byte
	unmarshalWire([]byte) error
}

var errMalformed = fmt.Errorf("malformed wire payload")
