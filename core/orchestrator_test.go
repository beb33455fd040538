package core

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(log)
}

func waitForPeers(t *testing.T, o *Orchestrator, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if o.pool != nil && o.pool.Len() >= n {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("node %s never discovered %d peer(s) within %s", o.NodeID(), n, timeout)
}

// TestOrchestratorTwoNodeForwarding wires up two ring nodes over real UDP
// discovery and exercises the prompt path end to end: node A owns layer 0
// and forwards its activation to node B, which owns the final layer.
func TestOrchestratorTwoNodeForwarding(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network-backed ring test in short mode")
	}

	discoveryPort := uint16(19500)
	baseCfg := OrchestratorConfig{
		DiscoveryPort:          discoveryPort,
		BroadcastInterval:      30 * time.Millisecond,
		PeerTimeout:            3 * time.Second,
		ReaperInterval:         200 * time.Millisecond,
		TopologyInterval:       10 * time.Second,
		RPCCallDeadline:        3 * time.Second,
		TopologyFanoutDeadline: 3 * time.Second,
		MaxConcurrentInbound:   8,
	}

	cfgA := baseCfg
	cfgA.NodeID = "node-a"
	cfgA.GRPCPort = 19401

	cfgB := baseCfg
	cfgB.NodeID = "node-b"
	cfgB.GRPCPort = 19402

	orchA := NewOrchestrator(cfgA, NewEchoBackend(), StaticCapabilityProbe{Capabilities: DeviceCapabilities{Model: "a"}}, testLogger())
	orchB := NewOrchestrator(cfgB, NewEchoBackend(), StaticCapabilityProbe{Capabilities: DeviceCapabilities{Model: "b"}}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orchA.Start(ctx); err != nil {
		t.Fatalf("orchA.Start() error = %v", err)
	}
	defer orchA.Stop()
	if err := orchB.Start(ctx); err != nil {
		t.Fatalf("orchB.Start() error = %v", err)
	}
	defer orchB.Stop()

	waitForPeers(t, orchA, 1, 5*time.Second)
	waitForPeers(t, orchB, 1, 5*time.Second)

	shardA := Shard{ModelID: "m", StartLayer: 0, EndLayer: 0, NLayers: 2}
	prompt := "hello ring node"
	resp, err := orchA.HandleSendPrompt(ctx, &SendPromptRequest{Shard: shardA, Prompt: prompt, RequestID: "req-1"})
	if err != nil {
		t.Fatalf("HandleSendPrompt() error = %v", err)
	}
	if err := resp.Tensor.Validate(); err != nil {
		t.Fatalf("forwarded response has an invalid tensor: %v", err)
	}
	wantBytes := len(prompt) * 4
	if len(resp.Tensor.Bytes) != wantBytes {
		t.Fatalf("response tensor has %d bytes, want %d", len(resp.Tensor.Bytes), wantBytes)
	}

	snapA := orchA.Meter().Snapshot()
	if snapA.PromptRequests != 1 {
		t.Fatalf("orchA PromptRequests = %d, want 1", snapA.PromptRequests)
	}
	snapB := orchB.Meter().Snapshot()
	if snapB.TensorRequests != 1 {
		t.Fatalf("orchB TensorRequests = %d, want 1", snapB.TensorRequests)
	}
}

func TestOrchestratorHealthCheckBeforeStart(t *testing.T) {
	orch := NewOrchestrator(OrchestratorConfig{NodeID: "solo"}, NewEchoBackend(), StaticCapabilityProbe{}, testLogger())
	if orch.IsHealthy() {
		t.Fatal("a never-started orchestrator should not report healthy")
	}
	resp, err := orch.HandleHealthCheck(context.Background(), &HealthCheckRequest{})
	if err != nil {
		t.Fatalf("HandleHealthCheck() error = %v", err)
	}
	if resp.IsHealthy {
		t.Fatal("HandleHealthCheck() reported healthy before Start")
	}
}

func TestOrchestratorSendPromptRejectsMalformedShard(t *testing.T) {
	orch := NewOrchestrator(OrchestratorConfig{NodeID: "solo"}, NewEchoBackend(), StaticCapabilityProbe{}, testLogger())
	bad := Shard{StartLayer: 5, EndLayer: 1, NLayers: 8}
	_, err := orch.HandleSendPrompt(context.Background(), &SendPromptRequest{Shard: bad, Prompt: "x"})
	if err == nil {
		t.Fatal("expected a malformed shard to be rejected")
	}
	if snap := orch.Meter().Snapshot(); snap.Failures != 1 {
		t.Fatalf("Failures = %d, want 1", snap.Failures)
	}
}

func TestOrchestratorSendPromptNoPeersWhenNotLastLayer(t *testing.T) {
	orch := NewOrchestrator(OrchestratorConfig{NodeID: "solo"}, NewEchoBackend(), StaticCapabilityProbe{}, testLogger())
	orch.pool = NewPeerPool(time.Second, testLogger())
	shard := Shard{StartLayer: 0, EndLayer: 0, NLayers: 4}
	_, err := orch.HandleSendPrompt(context.Background(), &SendPromptRequest{Shard: shard, Prompt: "x"})
	if err == nil {
		t.Fatal("expected forwarding with no peers in the pool to fail")
	}
	ce, ok := AsCoreError(err)
	if !ok || ce.Kind != KindNoPeers {
		t.Fatalf("error = %v, want KindNoPeers", err)
	}
}
