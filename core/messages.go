package core

import "bytes"

// Request/response payloads for the six RPCs in the node's external
// interface. Each implements wireMessage so the grpc custom codec
// (codec.go) can move them over the wire without protoc-generated types.

type SendPromptRequest struct {
	Shard     Shard
	Prompt    string
	RequestID string
	State     InferenceState
}

func (m *SendPromptRequest) marshalWire() []byte {
	var buf bytes.Buffer
	encodeShard(&buf, m.Shard)
	writeString(&buf, m.Prompt)
	writeString(&buf, m.RequestID)
	encodeState(&buf, m.State)
	return buf.Bytes()
}

func (m *SendPromptRequest) unmarshalWire(data []byte) error {
	r := &byteReader{data: data}
	shard, err := decodeShard(r)
	if err != nil {
		return err
	}
	prompt, err := r.readString()
	if err != nil {
		return err
	}
	rid, err := r.readString()
	if err != nil {
		return err
	}
	state, err := decodeState(r)
	if err != nil {
		return err
	}
	*m = SendPromptRequest{Shard: shard, Prompt: prompt, RequestID: rid, State: state}
	return nil
}

type SendTensorRequest struct {
	Shard     Shard
	Input     Tensor
	RequestID string
	State     InferenceState
}

func (m *SendTensorRequest) marshalWire() []byte {
	var buf bytes.Buffer
	encodeShard(&buf, m.Shard)
	encodeTensor(&buf, m.Input)
	writeString(&buf, m.RequestID)
	encodeState(&buf, m.State)
	return buf.Bytes()
}

func (m *SendTensorRequest) unmarshalWire(data []byte) error {
	r := &byteReader{data: data}
	shard, err := decodeShard(r)
	if err != nil {
		return err
	}
	tensor, err := decodeTensor(r)
	if err != nil {
		return err
	}
	rid, err := r.readString()
	if err != nil {
		return err
	}
	state, err := decodeState(r)
	if err != nil {
		return err
	}
	*m = SendTensorRequest{Shard: shard, Input: tensor, RequestID: rid, State: state}
	return nil
}

// TensorResponse is returned by both SendPrompt and SendTensor.
type TensorResponse struct {
	Tensor Tensor
	State  InferenceState
}

func (m *TensorResponse) marshalWire() []byte {
	var buf bytes.Buffer
	encodeTensor(&buf, m.Tensor)
	encodeState(&buf, m.State)
	return buf.Bytes()
}

func (m *TensorResponse) unmarshalWire(data []byte) error {
	r := &byteReader{data: data}
	tensor, err := decodeTensor(r)
	if err != nil {
		return err
	}
	state, err := decodeState(r)
	if err != nil {
		return err
	}
	*m = TensorResponse{Tensor: tensor, State: state}
	return nil
}

type CollectTopologyRequest struct {
	Visited  []string
	MaxDepth int32
}

func (m *CollectTopologyRequest) marshalWire() []byte {
	var buf bytes.Buffer
	writeStringSlice(&buf, m.Visited)
	writeUint32(&buf, uint32(m.MaxDepth))
	return buf.Bytes()
}

func (m *CollectTopologyRequest) unmarshalWire(data []byte) error {
	r := &byteReader{data: data}
	visited, err := r.readStringSlice()
	if err != nil {
		return err
	}
	depth, err := r.readUint32()
	if err != nil {
		return err
	}
	*m = CollectTopologyRequest{Visited: visited, MaxDepth: int32(depth)}
	return nil
}

type TopologyResponse struct {
	Topology Topology
}

func (m *TopologyResponse) marshalWire() []byte {
	var buf bytes.Buffer
	encodeTopology(&buf, m.Topology)
	return buf.Bytes()
}

func (m *TopologyResponse) unmarshalWire(data []byte) error {
	r := &byteReader{data: data}
	top, err := decodeTopology(r)
	if err != nil {
		return err
	}
	*m = TopologyResponse{Topology: top}
	return nil
}

type SendResultRequest struct {
	RequestID  string
	TokenIDs   []int32
	IsFinished bool
}

func (m *SendResultRequest) marshalWire() []byte {
	var buf bytes.Buffer
	writeString(&buf, m.RequestID)
	writeInt32Slice(&buf, m.TokenIDs)
	writeBool(&buf, m.IsFinished)
	return buf.Bytes()
}

func (m *SendResultRequest) unmarshalWire(data []byte) error {
	r := &byteReader{data: data}
	rid, err := r.readString()
	if err != nil {
		return err
	}
	tokens, err := r.readInt32Slice()
	if err != nil {
		return err
	}
	finished, err := r.readBool()
	if err != nil {
		return err
	}
	*m = SendResultRequest{RequestID: rid, TokenIDs: tokens, IsFinished: finished}
	return nil
}

type SendOpaqueStatusRequest struct {
	RequestID string
	Status    string
}

func (m *SendOpaqueStatusRequest) marshalWire() []byte {
	var buf bytes.Buffer
	writeString(&buf, m.RequestID)
	writeString(&buf, m.Status)
	return buf.Bytes()
}

func (m *SendOpaqueStatusRequest) unmarshalWire(data []byte) error {
	r := &byteReader{data: data}
	rid, err := r.readString()
	if err != nil {
		return err
	}
	status, err := r.readString()
	if err != nil {
		return err
	}
	*m = SendOpaqueStatusRequest{RequestID: rid, Status: status}
	return nil
}

// AckResponse is returned by SendResult and SendOpaqueStatus.
type AckResponse struct {
	Ok bool
}

func (m *AckResponse) marshalWire() []byte {
	var buf bytes.Buffer
	writeBool(&buf, m.Ok)
	return buf.Bytes()
}

func (m *AckResponse) unmarshalWire(data []byte) error {
	r := &byteReader{data: data}
	ok, err := r.readBool()
	if err != nil {
		return err
	}
	*m = AckResponse{Ok: ok}
	return nil
}

type HealthCheckRequest struct{}

func (m *HealthCheckRequest) marshalWire() []byte { return nil }

func (m *HealthCheckRequest) unmarshalWire(data []byte) error { return nil }

type HealthCheckResponse struct {
	IsHealthy         bool
	CachedTopologyLen int32
}

func (m *HealthCheckResponse) marshalWire() []byte {
	var buf bytes.Buffer
	writeBool(&buf, m.IsHealthy)
	writeUint32(&buf, uint32(m.CachedTopologyLen))
	return buf.Bytes()
}

func (m *HealthCheckResponse) unmarshalWire(data []byte) error {
	r := &byteReader{data: data}
	healthy, err := r.readBool()
	if err != nil {
		return err
	}
	n, err := r.readUint32()
	if err != nil {
		return err
	}
	*m = HealthCheckResponse{IsHealthy: healthy, CachedTopologyLen: int32(n)}
	return nil
}
