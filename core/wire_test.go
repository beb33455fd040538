package core

import (
	"reflect"
	"testing"
)

func roundTrip[T wireMessage](t *testing.T, msg T, fresh func() T) T {
	t.Helper()
	data := msg.marshalWire()
	out := fresh()
	if err := out.unmarshalWire(data); err != nil {
		t.Fatalf("unmarshalWire() error = %v", err)
	}
	return out
}

func TestSendPromptRequestRoundTrip(t *testing.T) {
	want := &SendPromptRequest{
		Shard:     Shard{ModelID: "m1", StartLayer: 0, EndLayer: 3, NLayers: 8},
		Prompt:    "hello ring",
		RequestID: "req-1",
		State:     InferenceState("kv-cache-blob"),
	}
	got := roundTrip(t, want, func() *SendPromptRequest { return &SendPromptRequest{} })
	if !reflect.DeepEqual(*want, *got) {
		t.Fatalf("round trip mismatch:\n want %+v\n got  %+v", *want, *got)
	}
}

func TestSendPromptRequestRoundTripNoState(t *testing.T) {
	want := &SendPromptRequest{
		Shard:     Shard{ModelID: "m1", StartLayer: 0, EndLayer: 0, NLayers: 1},
		Prompt:    "",
		RequestID: "",
	}
	got := roundTrip(t, want, func() *SendPromptRequest { return &SendPromptRequest{} })
	if got.Prompt != "" || got.RequestID != "" || got.State.Present() {
		t.Fatalf("round trip of empty fields produced %+v", *got)
	}
}

func TestSendTensorRequestRoundTrip(t *testing.T) {
	want := &SendTensorRequest{
		Shard:     Shard{ModelID: "m2", StartLayer: 4, EndLayer: 7, NLayers: 8},
		Input:     Tensor{Shape: []int32{2, 2}, Dtype: DtypeFloat32, Bytes: make([]byte, 16)},
		RequestID: "req-2",
		State:     nil,
	}
	got := roundTrip(t, want, func() *SendTensorRequest { return &SendTensorRequest{} })
	if got.RequestID != want.RequestID || got.Shard != want.Shard {
		t.Fatalf("round trip mismatch: %+v", *got)
	}
	if !reflect.DeepEqual(got.Input, want.Input) {
		t.Fatalf("tensor round trip mismatch: %+v vs %+v", got.Input, want.Input)
	}
}

func TestTensorResponseRoundTrip(t *testing.T) {
	want := &TensorResponse{
		Tensor: Tensor{Shape: []int32{3}, Dtype: DtypeInt32, Bytes: make([]byte, 12)},
		State:  InferenceState("state"),
	}
	got := roundTrip(t, want, func() *TensorResponse { return &TensorResponse{} })
	if !reflect.DeepEqual(*want, *got) {
		t.Fatalf("round trip mismatch: %+v vs %+v", *want, *got)
	}
}

func TestCollectTopologyRequestRoundTrip(t *testing.T) {
	want := &CollectTopologyRequest{Visited: []string{"a", "b", "c"}, MaxDepth: 3}
	got := roundTrip(t, want, func() *CollectTopologyRequest { return &CollectTopologyRequest{} })
	if !reflect.DeepEqual(*want, *got) {
		t.Fatalf("round trip mismatch: %+v vs %+v", *want, *got)
	}
}

func TestTopologyResponseRoundTrip(t *testing.T) {
	top := NewTopology()
	top.Nodes["n1"] = DeviceCapabilities{Model: "m", Chip: "c", MemoryMiB: 1024}
	top.PeerGraph["n1"] = []TopologyEdge{{To: "n2", Description: "RPC peer"}}
	want := &TopologyResponse{Topology: top}

	got := roundTrip(t, want, func() *TopologyResponse { return &TopologyResponse{} })
	if !reflect.DeepEqual(got.Topology.Nodes, want.Topology.Nodes) {
		t.Fatalf("topology nodes mismatch: %+v vs %+v", got.Topology.Nodes, want.Topology.Nodes)
	}
	if !reflect.DeepEqual(got.Topology.PeerGraph, want.Topology.PeerGraph) {
		t.Fatalf("topology edges mismatch: %+v vs %+v", got.Topology.PeerGraph, want.Topology.PeerGraph)
	}
}

func TestSendResultRequestRoundTrip(t *testing.T) {
	want := &SendResultRequest{RequestID: "req-3", TokenIDs: []int32{1, 2, 3}, IsFinished: true}
	got := roundTrip(t, want, func() *SendResultRequest { return &SendResultRequest{} })
	if !reflect.DeepEqual(*want, *got) {
		t.Fatalf("round trip mismatch: %+v vs %+v", *want, *got)
	}
}

func TestAckResponseRoundTrip(t *testing.T) {
	want := &AckResponse{Ok: true}
	got := roundTrip(t, want, func() *AckResponse { return &AckResponse{} })
	if got.Ok != want.Ok {
		t.Fatalf("round trip mismatch: %+v vs %+v", *want, *got)
	}
}

func TestHealthCheckResponseRoundTrip(t *testing.T) {
	want := &HealthCheckResponse{IsHealthy: true, CachedTopologyLen: 5}
	got := roundTrip(t, want, func() *HealthCheckResponse { return &HealthCheckResponse{} })
	if !reflect.DeepEqual(*want, *got) {
		t.Fatalf("round trip mismatch: %+v vs %+v", *want, *got)
	}
}

func TestDecodeTensorRejectsSizeMismatch(t *testing.T) {
	bad := Tensor{Shape: []int32{2, 2}, Dtype: DtypeFloat32, Bytes: make([]byte, 4)}
	req := &SendTensorRequest{Shard: Shard{NLayers: 1}, Input: bad}
	data := req.marshalWire()

	var out SendTensorRequest
	if err := out.unmarshalWire(data); err == nil {
		t.Fatal("expected decode to reject a tensor whose shape/dtype imply a different byte length")
	}
}
