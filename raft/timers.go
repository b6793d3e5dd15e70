package raft

import (
	"math/rand"
	"time"
)

// electionTimeout returns a randomized duration in [min, max), reducing
// split votes across the cluster (spec.md §5). Grounded on
// bernerdschaefer-raft/server.go's ElectionTimeout(), adapted to take an
// explicit range instead of a fixed multiple of a minimum.
func electionTimeout(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := max - min
	return min + time.Duration(rand.Int63n(int64(span)))
}
