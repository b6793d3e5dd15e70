package raft

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the tunables spec.md §5 names as constants. The zero
// value is not valid; use DefaultConfig or LoadConfig.
type Config struct {
	// HeartbeatInterval is how often a leader broadcasts Append RPCs
	// with empty entries (spec.md §4.2: 0.25s).
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// ElectionTimeoutMin/Max bound the randomized per-replica follower
	// timeout (spec.md §5: e.g. 0.5-1.0s).
	ElectionTimeoutMin time.Duration `yaml:"election_timeout_min"`
	ElectionTimeoutMax time.Duration `yaml:"election_timeout_max"`

	// CandidateTimeout is the fixed (non-randomized) timeout a
	// Candidate waits before starting a new election (spec.md §4.1:
	// "Candidate, election timeout elapsed, no majority"; §5: ~1s).
	CandidateTimeout time.Duration `yaml:"candidate_timeout"`

	// RecvPoll is how long the event loop blocks waiting for a single
	// inbound datagram before re-checking timers (spec.md §5: ~0.5s).
	RecvPoll time.Duration `yaml:"recv_poll"`

	// RequestQueueSize bounds request_queue (spec.md §3).
	RequestQueueSize int `yaml:"request_queue_size"`

	// PersistPath, if non-empty, switches the replica to a BoltPersister
	// rooted at this file instead of the in-memory default (§9's open
	// question on durability).
	PersistPath string `yaml:"persist_path"`
}

// DefaultConfig returns the constants named directly in spec.md.
func DefaultConfig() *Config {
	return &Config{
		HeartbeatInterval:  250 * time.Millisecond,
		ElectionTimeoutMin: 500 * time.Millisecond,
		ElectionTimeoutMax: 1000 * time.Millisecond,
		CandidateTimeout:   1 * time.Second,
		RecvPoll:           500 * time.Millisecond,
		RequestQueueSize:   256,
	}
}

// LoadConfig reads YAML overrides from path and applies them on top of
// DefaultConfig. An empty path returns DefaultConfig unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("raftkv: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("raftkv: parse config %s: %w", path, err)
	}
	return cfg, nil
}
