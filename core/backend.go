package core

import "context"

// Backend is the full capability set the core consumes from a model
// runtime. Implementations own whatever inference runtime is wired in —
// the core never inspects InferenceState beyond passing it through, and
// never calls Encode/Decode/Sample/LoadCheckpoint/ClearSession/
// SupportedModels itself; they exist so a host process driving this node
// (tokenizing a prompt ahead of time, swapping checkpoints, listing what
// a node can serve) has a slot to call into the same backend RunPrompt and
// RunTensor use.
type Backend interface {
	// Encode tokenizes prompt for shard into a token array.
	Encode(ctx context.Context, shard Shard, prompt string) ([]int32, error)

	// Decode renders tokens for shard back into text.
	Decode(ctx context.Context, shard Shard, tokens []int32) (string, error)

	// Sample draws tokens from logits at the given temperature.
	Sample(ctx context.Context, logits Tensor, temperature float32) ([]int32, error)

	// RunPrompt tokenizes and runs prompt through shard, returning the
	// first hop's output tensor and any derived state.
	RunPrompt(ctx context.Context, shard Shard, prompt string, state InferenceState) (Tensor, InferenceState, error)

	// RunTensor runs an already-tokenized/activated tensor through shard.
	RunTensor(ctx context.Context, shard Shard, input Tensor, state InferenceState) (Tensor, InferenceState, error)

	// LoadCheckpoint loads model weights for shard from path, replacing
	// whatever checkpoint was previously loaded for that shard.
	LoadCheckpoint(ctx context.Context, shard Shard, path string) error

	// ClearSession discards any cached per-session state (e.g. KV cache)
	// the backend is holding across calls.
	ClearSession(ctx context.Context) error

	// SupportedModels lists the model identifiers this backend can serve.
	SupportedModels(ctx context.Context) ([]string, error)
}

// CapabilityProbe reports the hardware capabilities of the local node.
// Implementations typically cache the result after the first call since
// capabilities don't change during a process's lifetime.
type CapabilityProbe interface {
	Probe(ctx context.Context) (DeviceCapabilities, error)
}
