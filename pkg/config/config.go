// Package config provides a reusable loader for ringnode configuration
// files and environment variables: a viper-backed YAML load plus
// RINGNODE_-prefixed environment overrides.
//
// Version: v0.1.0
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"ringnode/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config holds every option recognized by the core node.
type Config struct {
	NodeID               string `mapstructure:"node_id" json:"node_id"`
	GRPCPort             int    `mapstructure:"grpc_port" json:"grpc_port"`
	DiscoveryPort        int    `mapstructure:"discovery_port" json:"discovery_port"`
	BroadcastIntervalMs  int    `mapstructure:"broadcast_interval_ms" json:"broadcast_interval_ms"`
	PeerTimeoutMs        int    `mapstructure:"peer_timeout_ms" json:"peer_timeout_ms"`
	ReaperIntervalMs     int    `mapstructure:"reaper_interval_ms" json:"reaper_interval_ms"`
	TopologyIntervalMs   int    `mapstructure:"topology_interval_ms" json:"topology_interval_ms"`
	RPCKeepaliveMs       int    `mapstructure:"rpc_keepalive_ms" json:"rpc_keepalive_ms"`
	RPCCallDeadlineMs    int    `mapstructure:"rpc_call_deadline_ms" json:"rpc_call_deadline_ms"`
	MaxMessageBytes      int    `mapstructure:"max_message_bytes" json:"max_message_bytes"`
	MaxConcurrentInbound int    `mapstructure:"max_concurrent_inbound" json:"max_concurrent_inbound"`
	DummyBackend         bool   `mapstructure:"dummy_backend" json:"dummy_backend"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		JSON  bool   `mapstructure:"json" json:"json"`
	} `mapstructure:"logging" json:"logging"`
}

// defaults returns a Config populated with the node's default values.
func defaults() Config {
	var c Config
	c.GRPCPort = 50051
	c.DiscoveryPort = 5678
	c.BroadcastIntervalMs = 2500
	c.PeerTimeoutMs = 10000
	c.ReaperIntervalMs = 5000
	c.TopologyIntervalMs = 5000
	c.RPCKeepaliveMs = 10000
	c.RPCCallDeadlineMs = 30000
	c.MaxMessageBytes = 256 * 1024 * 1024
	c.MaxConcurrentInbound = 32
	c.Logging.Level = "info"
	return c
}

// AppConfig holds the configuration loaded via Load.
var AppConfig Config

// Load reads a YAML config file (if present) plus RINGNODE_-prefixed
// environment overrides, merges them over the built-in defaults, and
// stores the result in AppConfig.
func Load(path string) (*Config, error) {
	AppConfig = defaults()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, utils.Wrap(err, "load config file "+path)
		}
	}

	v.SetEnvPrefix("RINGNODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"node_id", "grpc_port", "discovery_port", "broadcast_interval_ms", "peer_timeout_ms",
		"reaper_interval_ms", "topology_interval_ms", "rpc_keepalive_ms", "rpc_call_deadline_ms",
		"max_message_bytes", "max_concurrent_inbound", "dummy_backend", "logging.level", "logging.json",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	if AppConfig.NodeID == "" {
		AppConfig.NodeID = utils.EnvOrDefault("RINGNODE_NODE_ID", "")
	}
	AppConfig.MaxConcurrentInbound = utils.EnvOrDefaultInt("RINGNODE_MAX_CONCURRENT_INBOUND", AppConfig.MaxConcurrentInbound)
	AppConfig.MaxMessageBytes = int(utils.EnvOrDefaultUint64("RINGNODE_MAX_MESSAGE_BYTES", uint64(AppConfig.MaxMessageBytes)))
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the RINGNODE_CONFIG_PATH
// environment variable to locate an optional YAML file.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("RINGNODE_CONFIG_PATH", ""))
}

// BroadcastInterval returns BroadcastIntervalMs as a time.Duration.
func (c Config) BroadcastInterval() time.Duration {
	return time.Duration(c.BroadcastIntervalMs) * time.Millisecond
}

// PeerTimeout returns PeerTimeoutMs as a time.Duration.
func (c Config) PeerTimeout() time.Duration {
	return time.Duration(c.PeerTimeoutMs) * time.Millisecond
}

// ReaperInterval returns ReaperIntervalMs as a time.Duration.
func (c Config) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalMs) * time.Millisecond
}

// TopologyInterval returns TopologyIntervalMs as a time.Duration.
func (c Config) TopologyInterval() time.Duration {
	return time.Duration(c.TopologyIntervalMs) * time.Millisecond
}

// RPCCallDeadline returns RPCCallDeadlineMs as a time.Duration.
func (c Config) RPCCallDeadline() time.Duration {
	return time.Duration(c.RPCCallDeadlineMs) * time.Millisecond
}
