package core

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Shard is an inclusive range of transformer layers of a specific model
// assigned to one node.
type Shard struct {
	ModelID    string
	StartLayer uint32
	EndLayer   uint32
	NLayers    uint32
}

// Validate checks the structural invariants of a Shard.
func (s Shard) Validate() error {
	if s.StartLayer > s.EndLayer {
		return newError(KindMalformedRequest, "", fmt.Errorf("shard: startLayer %d > endLayer %d", s.StartLayer, s.EndLayer))
	}
	if s.NLayers == 0 || s.EndLayer > s.NLayers-1 {
		return newError(KindMalformedRequest, "", fmt.Errorf("shard: endLayer %d out of bounds for nLayers %d", s.EndLayer, s.NLayers))
	}
	return nil
}

// LayerCount returns the number of layers this shard covers.
func (s Shard) LayerCount() uint32 {
	return s.EndLayer - s.StartLayer + 1
}

// IsFirstLayer reports whether this shard owns layer 0.
func (s Shard) IsFirstLayer() bool {
	return s.StartLayer == 0
}

// IsLastLayer reports whether this shard owns the final layer of the model.
func (s Shard) IsLastLayer() bool {
	return s.EndLayer == s.NLayers-1
}

// Advance computes the next contiguous shard of the same layer count,
// clamped so EndLayer never exceeds NLayers-1.
func (s Shard) Advance() Shard {
	next := Shard{
		ModelID:    s.ModelID,
		NLayers:    s.NLayers,
		StartLayer: s.EndLayer + 1,
	}
	end := s.EndLayer + s.LayerCount()
	if end > s.NLayers-1 {
		end = s.NLayers - 1
	}
	next.EndLayer = end
	return next
}

func (s Shard) String() string {
	return fmt.Sprintf("%s[%d:%d/%d]", s.ModelID, s.StartLayer, s.EndLayer, s.NLayers)
}

// DeviceFlops reports peak throughput at a few common precisions, in TFLOPS.
type DeviceFlops struct {
	FP32 float32
	FP16 float32
	Int8 float32
}

// DeviceCapabilities describes the hardware a node runs on.
type DeviceCapabilities struct {
	Model     string
	Chip      string
	MemoryMiB uint32
	Flops     DeviceFlops
}

// UnknownCapabilities is the sentinel value used before a capability probe
// has completed.
var UnknownCapabilities = DeviceCapabilities{Model: "unknown", Chip: "unknown"}

// IsUnknown reports whether c is the sentinel UNKNOWN value.
func (c DeviceCapabilities) IsUnknown() bool {
	return c.Model == UnknownCapabilities.Model && c.Chip == UnknownCapabilities.Chip
}

func (c DeviceCapabilities) String() string {
	return fmt.Sprintf("%s/%s (%dMiB)", c.Chip, c.Model, c.MemoryMiB)
}

// PeerInfo is what discovery knows about one remote node.
type PeerInfo struct {
	ID         string
	Address    string
	Port       uint16
	LastSeenMs int64
}

func (p PeerInfo) String() string {
	return fmt.Sprintf("%s@%s:%d", p.ID, p.Address, p.Port)
}

// nowMs returns the current time in epoch milliseconds.
func nowMs() int64 {
	return time.Now().UnixMilli()
}

// Tensor is the in-memory representation of an intermediate activation.
// Bytes holds the scalar buffer in little-endian byte order; Shape is the dimension
// vector; Dtype is "float32" or "int32".
type Tensor struct {
	Bytes []byte
	Shape []int32
	Dtype string
}

const (
	DtypeFloat32 = "float32"
	DtypeInt32   = "int32"
)

func dtypeSize(dtype string) (int, error) {
	switch dtype {
	case DtypeFloat32, DtypeInt32:
		return 4, nil
	default:
		return 0, fmt.Errorf("unknown dtype %q", dtype)
	}
}

// Validate checks that product(shape) * sizeof(dtype) == len(bytes).
func (t Tensor) Validate() error {
	size, err := dtypeSize(t.Dtype)
	if err != nil {
		return newError(KindMalformedRequest, "", err)
	}
	count := int64(1)
	for _, d := range t.Shape {
		if d < 0 {
			return newError(KindMalformedRequest, "", fmt.Errorf("tensor: negative shape dimension %d", d))
		}
		count *= int64(d)
	}
	want := count * int64(size)
	if want != int64(len(t.Bytes)) {
		return &Error{Kind: KindMalformedTensor, Cause: fmt.Errorf("tensor: shape/dtype implies %d bytes, got %d", want, len(t.Bytes))}
	}
	return nil
}

// InferenceState is an opaque blob (kv-cache, metadata) the core never
// inspects. A nil/empty slice decodes to "absent" on the wire.
type InferenceState []byte

// Present reports whether the state carries a payload.
func (s InferenceState) Present() bool {
	return len(s) > 0
}

// Topology is a snapshot of which nodes exist in the cluster and how they
// are pairwise connected.
type Topology struct {
	Nodes     map[string]DeviceCapabilities
	PeerGraph map[string][]TopologyEdge
}

// TopologyEdge is one outbound edge in the peer graph.
type TopologyEdge struct {
	To          string
	Description string
}

// NewTopology returns an empty, non-nil Topology.
func NewTopology() Topology {
	return Topology{
		Nodes:     make(map[string]DeviceCapabilities),
		PeerGraph: make(map[string][]TopologyEdge),
	}
}

// Merge folds other into t: nodes are unioned (other wins on duplicate id),
// edges are concatenated per source node with (from,to) de-duplication.
func (t Topology) Merge(other Topology, log *logrus.Entry) Topology {
	for id, caps := range other.Nodes {
		if _, exists := t.Nodes[id]; exists && log != nil {
			log.Warnf("topology: duplicate node id %s during merge, keeping latest", id)
		}
		t.Nodes[id] = caps
	}
	for from, edges := range other.PeerGraph {
		existing := t.PeerGraph[from]
		seen := make(map[string]struct{}, len(existing))
		for _, e := range existing {
			seen[e.To] = struct{}{}
		}
		for _, e := range edges {
			if _, dup := seen[e.To]; dup {
				continue
			}
			seen[e.To] = struct{}{}
			existing = append(existing, e)
		}
		t.PeerGraph[from] = existing
	}
	return t
}
