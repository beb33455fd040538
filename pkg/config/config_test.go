package config

import (
	"os"
	"testing"

	"ringnode/internal/testutil"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.GRPCPort != 50051 {
		t.Fatalf("GRPCPort = %d, want 50051", c.GRPCPort)
	}
	if c.DiscoveryPort != 5678 {
		t.Fatalf("DiscoveryPort = %d, want 5678", c.DiscoveryPort)
	}
	if c.MaxConcurrentInbound != 32 {
		t.Fatalf("MaxConcurrentInbound = %d, want 32", c.MaxConcurrentInbound)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	yaml := []byte("node_id: node-a\ngrpc_port: 60000\ndiscovery_port: 6000\n")
	if err := sb.WriteFile("ringnode.yaml", yaml, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	c, err := Load(sb.Path("ringnode.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.NodeID != "node-a" {
		t.Fatalf("NodeID = %q, want %q", c.NodeID, "node-a")
	}
	if c.GRPCPort != 60000 {
		t.Fatalf("GRPCPort = %d, want 60000", c.GRPCPort)
	}
	if c.DiscoveryPort != 6000 {
		t.Fatalf("DiscoveryPort = %d, want 6000", c.DiscoveryPort)
	}
	if c.ReaperIntervalMs != 5000 {
		t.Fatalf("ReaperIntervalMs = %d, want default 5000", c.ReaperIntervalMs)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("RINGNODE_NODE_ID", "node-env")
	defer os.Unsetenv("RINGNODE_NODE_ID")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.NodeID != "node-env" {
		t.Fatalf("NodeID = %q, want %q", c.NodeID, "node-env")
	}
}
