package core

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"time"
)

// EchoBackend is a Backend that performs no real inference. It produces a
// deterministic tensor sized off the prompt/input and optionally sleeps to
// simulate compute cost, which is useful for exercising the forwarding and
// metering paths without a real model runtime wired in.
type EchoBackend struct {
	// SimulatedLatency, if non-zero, is slept before returning on every call.
	SimulatedLatency time.Duration
}

// NewEchoBackend returns a Backend with no simulated latency.
func NewEchoBackend() *EchoBackend {
	return &EchoBackend{}
}

func (b *EchoBackend) simulate(ctx context.Context) error {
	if b.SimulatedLatency <= 0 {
		return nil
	}
	timer := time.NewTimer(b.SimulatedLatency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ErrCancelled()
	}
}

func (b *EchoBackend) RunPrompt(ctx context.Context, shard Shard, prompt string, state InferenceState) (Tensor, InferenceState, error) {
	if err := b.simulate(ctx); err != nil {
		return Tensor{}, nil, err
	}
	n := len(prompt)
	if n == 0 {
		n = 1
	}
	out := Tensor{
		Dtype: DtypeFloat32,
		Shape: []int32{1, int32(n)},
		Bytes: make([]byte, n*4),
	}
	return out, state, nil
}

func (b *EchoBackend) RunTensor(ctx context.Context, shard Shard, input Tensor, state InferenceState) (Tensor, InferenceState, error) {
	if err := b.simulate(ctx); err != nil {
		return Tensor{}, nil, err
	}
	return input, state, nil
}

// Encode maps prompt to one token per rune. A real backend would tokenize
// with its model's vocabulary; the dummy backend has none, so code points
// stand in for token ids.
func (b *EchoBackend) Encode(ctx context.Context, shard Shard, prompt string) ([]int32, error) {
	if err := b.simulate(ctx); err != nil {
		return nil, err
	}
	tokens := make([]int32, 0, len(prompt))
	for _, r := range prompt {
		tokens = append(tokens, int32(r))
	}
	return tokens, nil
}

// Decode inverts Encode: each token is treated as a rune code point.
func (b *EchoBackend) Decode(ctx context.Context, shard Shard, tokens []int32) (string, error) {
	if err := b.simulate(ctx); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteRune(rune(t))
	}
	return sb.String(), nil
}

// Sample always picks the highest-valued logit, ignoring temperature.
// Real stochastic sampling is a real backend's concern; the dummy backend
// only needs to be deterministic for tests.
func (b *EchoBackend) Sample(ctx context.Context, logits Tensor, temperature float32) ([]int32, error) {
	if err := b.simulate(ctx); err != nil {
		return nil, err
	}
	if err := logits.Validate(); err != nil {
		return nil, newError(KindMalformedTensor, "", err)
	}
	best, bestVal := 0, float32(math.Inf(-1))
	for i := 0; i+4 <= len(logits.Bytes); i += 4 {
		v := math.Float32frombits(binary.LittleEndian.Uint32(logits.Bytes[i : i+4]))
		if v > bestVal {
			bestVal = v
			best = i / 4
		}
	}
	return []int32{int32(best)}, nil
}

// LoadCheckpoint is a no-op: the dummy backend has no weights to load.
func (b *EchoBackend) LoadCheckpoint(ctx context.Context, shard Shard, path string) error {
	return nil
}

// ClearSession is a no-op: the dummy backend holds no per-session state.
func (b *EchoBackend) ClearSession(ctx context.Context) error {
	return nil
}

// SupportedModels reports the single synthetic model the dummy backend serves.
func (b *EchoBackend) SupportedModels(ctx context.Context) ([]string, error) {
	return []string{"echo"}, nil
}

// StaticCapabilityProbe returns a fixed DeviceCapabilities value, useful for
// tests and for operators who want to pin capabilities via config rather
// than probing the host.
type StaticCapabilityProbe struct {
	Capabilities DeviceCapabilities
}

func (p StaticCapabilityProbe) Probe(ctx context.Context) (DeviceCapabilities, error) {
	return p.Capabilities, nil
}
