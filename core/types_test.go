package core

import "testing"

func TestShardValidate(t *testing.T) {
	cases := []struct {
		name    string
		shard   Shard
		wantErr bool
	}{
		{"valid", Shard{StartLayer: 0, EndLayer: 3, NLayers: 8}, false},
		{"single layer", Shard{StartLayer: 4, EndLayer: 4, NLayers: 8}, false},
		{"start after end", Shard{StartLayer: 5, EndLayer: 2, NLayers: 8}, true},
		{"end out of bounds", Shard{StartLayer: 0, EndLayer: 8, NLayers: 8}, true},
		{"zero layers", Shard{StartLayer: 0, EndLayer: 0, NLayers: 0}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.shard.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestShardLayerCount(t *testing.T) {
	s := Shard{StartLayer: 2, EndLayer: 5, NLayers: 16}
	if got := s.LayerCount(); got != 4 {
		t.Fatalf("LayerCount() = %d, want 4", got)
	}
}

func TestShardFirstLastLayer(t *testing.T) {
	first := Shard{StartLayer: 0, EndLayer: 3, NLayers: 16}
	if !first.IsFirstLayer() {
		t.Fatal("expected IsFirstLayer true")
	}
	if first.IsLastLayer() {
		t.Fatal("expected IsLastLayer false")
	}
	last := Shard{StartLayer: 12, EndLayer: 15, NLayers: 16}
	if last.IsFirstLayer() {
		t.Fatal("expected IsFirstLayer false")
	}
	if !last.IsLastLayer() {
		t.Fatal("expected IsLastLayer true")
	}
}

// TestShardAdvanceStaysInBounds checks that repeatedly advancing a
// shard never produces an EndLayer >= NLayers, and eventually reaches the
// last layer.
func TestShardAdvanceStaysInBounds(t *testing.T) {
	s := Shard{ModelID: "m", StartLayer: 0, EndLayer: 2, NLayers: 10}
	seenLast := false
	for i := 0; i < 20; i++ {
		if s.EndLayer >= s.NLayers {
			t.Fatalf("shard %+v has EndLayer out of bounds", s)
		}
		if s.IsLastLayer() {
			seenLast = true
			break
		}
		next := s.Advance()
		if next.StartLayer != s.EndLayer+1 {
			t.Fatalf("Advance() StartLayer = %d, want %d", next.StartLayer, s.EndLayer+1)
		}
		if next.ModelID != s.ModelID || next.NLayers != s.NLayers {
			t.Fatalf("Advance() dropped ModelID/NLayers: %+v", next)
		}
		s = next
	}
	if !seenLast {
		t.Fatal("Advance() never reached the last layer")
	}
}

func TestShardAdvanceUnevenRemainder(t *testing.T) {
	s := Shard{StartLayer: 7, EndLayer: 9, NLayers: 10}
	next := s.Advance()
	if next.StartLayer != 10 || next.EndLayer != 9 {
		t.Fatalf("Advance() past the end = %+v, want a clamped empty-ish shard", next)
	}
}

func TestDeviceCapabilitiesIsUnknown(t *testing.T) {
	if !UnknownCapabilities.IsUnknown() {
		t.Fatal("UnknownCapabilities.IsUnknown() = false, want true")
	}
	known := DeviceCapabilities{Model: "m1", Chip: "gpu"}
	if known.IsUnknown() {
		t.Fatal("known capabilities reported as unknown")
	}
}

// TestTensorValidateRoundTrip checks product(shape)*sizeof(dtype) == len(bytes).
func TestTensorValidateRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		tensor  Tensor
		wantErr bool
	}{
		{"float32 ok", Tensor{Shape: []int32{2, 3}, Dtype: DtypeFloat32, Bytes: make([]byte, 24)}, false},
		{"int32 ok", Tensor{Shape: []int32{4}, Dtype: DtypeInt32, Bytes: make([]byte, 16)}, false},
		{"scalar ok", Tensor{Shape: nil, Dtype: DtypeFloat32, Bytes: make([]byte, 4)}, false},
		{"too few bytes", Tensor{Shape: []int32{2, 3}, Dtype: DtypeFloat32, Bytes: make([]byte, 8)}, true},
		{"too many bytes", Tensor{Shape: []int32{2, 3}, Dtype: DtypeFloat32, Bytes: make([]byte, 100)}, true},
		{"negative dim", Tensor{Shape: []int32{-1}, Dtype: DtypeFloat32, Bytes: nil}, true},
		{"unknown dtype", Tensor{Shape: []int32{1}, Dtype: "float64", Bytes: make([]byte, 4)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tensor.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestInferenceStatePresent(t *testing.T) {
	var absent InferenceState
	if absent.Present() {
		t.Fatal("nil InferenceState reported Present")
	}
	present := InferenceState{1, 2, 3}
	if !present.Present() {
		t.Fatal("non-empty InferenceState reported absent")
	}
}

func TestTopologyMerge(t *testing.T) {
	a := NewTopology()
	a.Nodes["n1"] = DeviceCapabilities{Model: "a"}
	a.PeerGraph["n1"] = []TopologyEdge{{To: "n2", Description: "RPC peer"}}

	b := NewTopology()
	b.Nodes["n2"] = DeviceCapabilities{Model: "b"}
	b.PeerGraph["n1"] = []TopologyEdge{{To: "n2", Description: "RPC peer"}, {To: "n3", Description: "RPC peer"}}

	merged := a.Merge(b, nil)
	if len(merged.Nodes) != 2 {
		t.Fatalf("Merge() Nodes = %v, want 2 entries", merged.Nodes)
	}
	if got := merged.PeerGraph["n1"]; len(got) != 2 {
		t.Fatalf("Merge() deduplicated edges incorrectly: %v", got)
	}
}
