package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ringnode/core"
	"ringnode/internal/statusapi"
	"ringnode/pkg/config"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{Use: "ringnode"}
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(topologyCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(contributionCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(jsonFormat bool, level string) *logrus.Entry {
	log := logrus.New()
	if jsonFormat {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	return logrus.NewEntry(log)
}

func startCmd() *cobra.Command {
	var configPath string
	var dummyBackend bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "start a ring inference node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dummyBackend {
				cfg.DummyBackend = true
			}

			log := newLogger(cfg.Logging.JSON, cfg.Logging.Level)
			if !cfg.DummyBackend {
				log.Warn("no real inference backend is wired into this CLI; falling back to the echo backend")
			}

			var backend core.Backend = core.NewEchoBackend()
			var probe core.CapabilityProbe = core.StaticCapabilityProbe{Capabilities: core.DeviceCapabilities{
				Model: "cli", Chip: "generic", MemoryMiB: 4096,
			}}

			orch := core.NewOrchestrator(core.OrchestratorConfig{
				NodeID:                 cfg.NodeID,
				GRPCPort:               uint16(cfg.GRPCPort),
				DiscoveryPort:          uint16(cfg.DiscoveryPort),
				BroadcastInterval:      cfg.BroadcastInterval(),
				PeerTimeout:            cfg.PeerTimeout(),
				ReaperInterval:         cfg.ReaperInterval(),
				TopologyInterval:       cfg.TopologyInterval(),
				RPCCallDeadline:        cfg.RPCCallDeadline(),
				TopologyFanoutDeadline: 10 * time.Second,
				MaxConcurrentInbound:   cfg.MaxConcurrentInbound,
			}, backend, probe, log)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := orch.Start(ctx); err != nil {
				return err
			}
			log.Infof("ringnode %s listening on :%d (discovery :%d)", cfg.NodeID, cfg.GRPCPort, cfg.DiscoveryPort)

			statusPort, err := statusapi.LoadEnv()
			if err != nil {
				return err
			}
			statusSrv := statusapi.NewServer(orch, statusPort, log)
			statusSrv.ListenAndServe()
			log.Infof("status API listening on :%s", statusPort)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			log.Info("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RPCCallDeadline())
			defer shutdownCancel()
			_ = statusSrv.Shutdown(shutdownCtx)
			orch.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().BoolVar(&dummyBackend, "dummy-backend", false, "use the echo backend instead of a real inference runtime")
	return cmd
}

func statusGet(addr, path string, out any) error {
	resp, err := http.Get(fmt.Sprintf("http://%s%s", addr, path))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status API returned %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

func topologyCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "print the cached topology of a running node",
		RunE: func(cmd *cobra.Command, args []string) error {
			var top core.Topology
			if err := statusGet(addr, "/api/status/topology", &top); err != nil {
				return err
			}
			return printJSON(top)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8081", "status API address")
	return cmd
}

func healthCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "print the health of a running node",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := statusGet(addr, "/api/status/health", &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8081", "status API address")
	return cmd
}

func contributionCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "contribution",
		Short: "print the contribution snapshot of a running node",
		RunE: func(cmd *cobra.Command, args []string) error {
			var snap core.ContributionSnapshot
			if err := statusGet(addr, "/api/status/contribution", &snap); err != nil {
				return err
			}
			return printJSON(snap)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8081", "status API address")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
