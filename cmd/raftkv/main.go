// Command raftkv launches a single replica of the replicated key-value
// store described in spec.md. Positional arguments are port, id, then
// one-or-more peer ids (spec.md §6 CLI row), rendered here with
// github.com/spf13/cobra the way the pack's other CLI-driven repos do
// (other_examples/network-programming, cuemby-warren both carry cobra in
// their go.mod).
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/nthu-dsrg/raftkv/raft"
	"github.com/nthu-dsrg/raftkv/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raftkv <port> <id> <peer>...",
		Short: "run one replica of the raftkv consensus core",
		Args:  cobra.MinimumNArgs(3),
		RunE:  run,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML config overriding raft.DefaultConfig")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "zap log level: debug, info, warn, error")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("raftkv: invalid port %q: %w", args[0], err)
	}
	id := args[1]
	peers := args[2:]

	logger, err := newLogger(logLevel)
	if err != nil {
		return fmt.Errorf("raftkv: build logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := raft.LoadConfig(configPath)
	if err != nil {
		return err
	}

	var persister raft.Persister = raft.NewMemoryPersister()
	if cfg.PersistPath != "" {
		bp, err := raft.OpenBoltPersister(cfg.PersistPath)
		if err != nil {
			return err
		}
		defer bp.Close()
		persister = bp
	}

	conn, err := transport.ListenUDP(port)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.SeedPeers(peers); err != nil {
		return err
	}

	r := raft.New(id, peers, conn, cfg, persister, logger)
	if err := r.Run(); err != nil {
		logger.Error("replica stopped", zap.Error(err))
		return err
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return cfg.Build()
}
