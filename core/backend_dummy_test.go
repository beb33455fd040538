package core

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestEchoBackendRunPrompt(t *testing.T) {
	b := NewEchoBackend()
	shard := Shard{ModelID: "m", StartLayer: 0, EndLayer: 1, NLayers: 4}
	out, state, err := b.RunPrompt(context.Background(), shard, "hello", InferenceState("kv"))
	if err != nil {
		t.Fatalf("RunPrompt() error = %v", err)
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("RunPrompt() produced an invalid tensor: %v", err)
	}
	if string(state) != "kv" {
		t.Fatalf("RunPrompt() did not pass state through: %v", state)
	}
}

func TestEchoBackendRunPromptEmptyPrompt(t *testing.T) {
	b := NewEchoBackend()
	out, _, err := b.RunPrompt(context.Background(), Shard{NLayers: 1}, "", nil)
	if err != nil {
		t.Fatalf("RunPrompt() error = %v", err)
	}
	if len(out.Bytes) == 0 {
		t.Fatal("RunPrompt() with empty prompt produced a zero-length tensor")
	}
}

func TestEchoBackendRunTensorEchoesInput(t *testing.T) {
	b := NewEchoBackend()
	in := Tensor{Shape: []int32{2}, Dtype: DtypeFloat32, Bytes: make([]byte, 8)}
	out, _, err := b.RunTensor(context.Background(), Shard{NLayers: 1}, in, nil)
	if err != nil {
		t.Fatalf("RunTensor() error = %v", err)
	}
	if len(out.Bytes) != len(in.Bytes) {
		t.Fatalf("RunTensor() out bytes = %d, want %d", len(out.Bytes), len(in.Bytes))
	}
}

func TestEchoBackendSimulatedLatencyCancellation(t *testing.T) {
	b := &EchoBackend{SimulatedLatency: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := b.RunPrompt(ctx, Shard{NLayers: 1}, "x", nil)
	if err == nil {
		t.Fatal("expected RunPrompt to report cancellation")
	}
	ce, ok := AsCoreError(err)
	if !ok || ce.Kind != KindCancelled {
		t.Fatalf("error = %v, want KindCancelled", err)
	}
}

func TestEchoBackendEncodeDecodeRoundTrip(t *testing.T) {
	b := NewEchoBackend()
	shard := Shard{NLayers: 1}
	tokens, err := b.Encode(context.Background(), shard, "hi!")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("Encode() returned %d tokens, want 3", len(tokens))
	}
	text, err := b.Decode(context.Background(), shard, tokens)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if text != "hi!" {
		t.Fatalf("Decode() = %q, want %q", text, "hi!")
	}
}

func TestEchoBackendSamplePicksArgmax(t *testing.T) {
	b := NewEchoBackend()
	values := []float32{0.1, 9.9, -4.0}
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	logits := Tensor{Shape: []int32{int32(len(values))}, Dtype: DtypeFloat32, Bytes: buf}
	tokens, err := b.Sample(context.Background(), logits, 1.0)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if len(tokens) != 1 || tokens[0] != 1 {
		t.Fatalf("Sample() = %v, want [1] (index of the largest logit)", tokens)
	}
}

func TestEchoBackendSampleRejectsInvalidTensor(t *testing.T) {
	b := NewEchoBackend()
	bad := Tensor{Shape: []int32{2}, Dtype: DtypeFloat32, Bytes: make([]byte, 1)}
	if _, err := b.Sample(context.Background(), bad, 1.0); err == nil {
		t.Fatal("expected Sample() to reject a malformed tensor")
	}
}

func TestEchoBackendSessionAndMetadataNoOps(t *testing.T) {
	b := NewEchoBackend()
	if err := b.LoadCheckpoint(context.Background(), Shard{}, "/tmp/whatever"); err != nil {
		t.Fatalf("LoadCheckpoint() error = %v", err)
	}
	if err := b.ClearSession(context.Background()); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}
	models, err := b.SupportedModels(context.Background())
	if err != nil {
		t.Fatalf("SupportedModels() error = %v", err)
	}
	if len(models) != 1 || models[0] != "echo" {
		t.Fatalf("SupportedModels() = %v, want [echo]", models)
	}
}

func TestStaticCapabilityProbe(t *testing.T) {
	want := DeviceCapabilities{Model: "m1", Chip: "c1", MemoryMiB: 2048}
	probe := StaticCapabilityProbe{Capabilities: want}
	got, err := probe.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if got != want {
		t.Fatalf("Probe() = %+v, want %+v", got, want)
	}
}
